// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Error taxonomy for the import pipeline.
var (
	// ErrDecode marks a malformed input row. Per-row, never fatal to a session.
	ErrDecode = errors.New("decode error")
	// ErrValidation marks a record missing a required normalized field.
	ErrValidation = errors.New("validation error")
	// ErrOracleUnavailable signals the optional text classifier failed or
	// timed out; the pipeline keeps its local verdict.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrStorageFailure marks a ledger write failure during finalize.
	ErrStorageFailure = errors.New("storage failure")
	// ErrSessionNotFound is returned for unknown or deleted session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned when a caller requests an operation
	// the session's state does not permit.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrRuleConflict signals a rule name collision on insert; resolved by
	// keeping the existing rule.
	ErrRuleConflict = errors.New("rule already exists")
	// ErrRecordNotFound is returned for unknown staged record sequences.
	ErrRecordNotFound = errors.New("staged record not found")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
