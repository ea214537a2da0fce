// Package service defines the interfaces between the pipeline components.
package service

import (
	"context"
	"time"

	"github.com/PL7092/MyMoney-sub001/internal/model"
)

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Session operations. AdvanceSession writes the new state together with
	// the reported counters in one statement, guarded by the expected
	// current state; it fails with ErrInvalidTransition when the session
	// moved concurrently and ErrSessionNotFound when it was deleted.
	CreateSession(ctx context.Context, session *model.ImportSession) error
	GetSession(ctx context.Context, id string) (*model.ImportSession, error)
	AdvanceSession(ctx context.Context, id string, from, to model.SessionState, counters model.SessionCounters, errorText string) error
	DeleteSession(ctx context.Context, id string) error

	// Staged record operations.
	SaveStagedRecords(ctx context.Context, records []model.StagedRecord) error
	ListStagedRecords(ctx context.Context, sessionID string) ([]model.StagedRecord, error)
	GetStagedRecord(ctx context.Context, sessionID string, sequence int) (*model.StagedRecord, error)
	UpdateStagedRecords(ctx context.Context, records []model.StagedRecord) error

	// Rule operations. IncrementRuleUsage is fire-and-forget: the counter is
	// a popularity signal and lost updates under concurrency are acceptable.
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	ListRules(ctx context.Context, owner string, kind model.RuleKind, activeOnly bool) ([]model.Rule, error)
	IncrementRuleUsage(id int64)
	UpdateRuleStats(ctx context.Context, id int64, successRate float64) error
	SetRuleActive(ctx context.Context, id int64, active bool) error

	// ApplyFeedback records a feedback event along with everything it implies
	// (the review verdict, the matched rule's new success rate, an optional
	// synthesized rule) in one transaction. It reports whether the event was
	// newly recorded; a repeat of the same (session, record) pair commits
	// nothing, and any failure rolls the whole batch back, event included.
	ApplyFeedback(ctx context.Context, event *model.FeedbackEvent, status model.RecordStatus, category string, successRate *float64, newRule *model.Rule) (bool, error)

	// FinalizeSession commits the given ledger entries, clears the session's
	// staged records, and moves it from Completed to Finalized as a single
	// atomic batch. Any failure rolls the whole batch back.
	FinalizeSession(ctx context.Context, sessionID string, entries []model.LedgerEntry) error

	Migrate(ctx context.Context) error
	Close() error
}

// LedgerStore is the read surface of the permanent transaction store the
// duplicate detector compares against. Ownership of balances stays with the
// ledger; this core only reads entries and appends through FinalizeSession.
type LedgerStore interface {
	SearchEntries(ctx context.Context, owner string, around time.Time, windowDays int) ([]model.LedgerEntry, error)
}

// RawRecord is one row as produced by the file decoding collaborator.
// Malformed rows carry a DecodeError instead of field values; they are part
// of the sequence, never a call failure.
type RawRecord struct {
	Sequence    int
	Date        string
	Description string
	Amount      string
	Raw         string
	DecodeError string
}

// Decoder is the file decoding collaborator: raw bytes in, an ordered
// sequence of raw field records out.
type Decoder interface {
	Decode(ctx context.Context, source model.SourceKind, data []byte) ([]RawRecord, error)
}

// OracleRequest asks the optional text classifier for an opinion.
type OracleRequest struct {
	Description string
	Direction   model.Direction
	Categories  []string
	Amount      float64
}

// OracleSuggestion is the oracle's ranked best answer.
type OracleSuggestion struct {
	Category   string
	Confidence float64
}

// Oracle is the optional text classification collaborator. Implementations
// must return common.ErrOracleUnavailable (wrapped) on failure or timeout so
// callers can fall back to the rule engine verdict.
type Oracle interface {
	Classify(ctx context.Context, req OracleRequest) (OracleSuggestion, error)
}
