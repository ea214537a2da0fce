package model

import "time"

// FeedbackChoice is the user's verdict on a suggestion.
type FeedbackChoice string

// Feedback choice constants.
const (
	FeedbackAccept   FeedbackChoice = "accept"
	FeedbackOverride FeedbackChoice = "override"
)

// FeedbackEvent links a staged record to the user's decision about its
// suggestion. At most one event exists per (session, record); repeats of the
// same submission are no-ops.
type FeedbackEvent struct {
	CreatedAt      time.Time
	RuleID         *int64
	SessionID      string
	ChosenCategory string
	Choice         FeedbackChoice
	ID             int64
	RecordSequence int
	CreateRule     bool
}
