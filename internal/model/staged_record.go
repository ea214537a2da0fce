package model

import "time"

// Direction indicates the flow of money for a normalized record.
type Direction string

// Direction constants.
const (
	DirectionIncome   Direction = "income"
	DirectionExpense  Direction = "expense"
	DirectionTransfer Direction = "transfer"
)

// ValidDirection reports whether d is one of the three known directions.
func ValidDirection(d Direction) bool {
	return d == DirectionIncome || d == DirectionExpense || d == DirectionTransfer
}

// RecordStatus indicates how far a staged record got through the pipeline.
type RecordStatus string

// Record status constants.
const (
	RecordPending    RecordStatus = "PENDING"
	RecordSuggested  RecordStatus = "SUGGESTED"
	RecordFailed     RecordStatus = "FAILED"
	RecordAccepted   RecordStatus = "ACCEPTED"
	RecordOverridden RecordStatus = "OVERRIDDEN"
)

// StagedRecord is a candidate transaction held for review before commit.
// It belongs to exactly one session and is keyed by (session id, sequence).
type StagedRecord struct {
	Date                time.Time
	ReviewedAt          *time.Time
	MatchedRuleID       *int64
	SessionID           string
	RawData             string
	Description         string
	SuggestedCategory   string
	SuggestedAccount    string
	ReviewedCategory    string
	ErrorText           string
	Direction           Direction
	Status              RecordStatus
	Sequence            int
	Amount              float64
	Confidence          float64
	DuplicateConfidence float64
	IsDuplicate         bool
}

// Committable reports whether the record carries the fields finalize needs:
// a parseable date and a non-negative amount. Category may still be empty;
// the finalizer resolves or rejects that separately.
func (r *StagedRecord) Committable() bool {
	return r.Status != RecordFailed && !r.Date.IsZero() && r.Amount >= 0
}

// EffectiveCategory returns the user's reviewed category when present,
// falling back to the pipeline suggestion.
func (r *StagedRecord) EffectiveCategory() string {
	if r.ReviewedCategory != "" {
		return r.ReviewedCategory
	}
	return r.SuggestedCategory
}
