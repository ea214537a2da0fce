// Package model defines the core domain models for the smart import pipeline.
package model

import (
	"fmt"
	"time"
)

// SourceKind identifies how the raw data entered the pipeline.
type SourceKind string

// Source kind constants.
const (
	SourceFile  SourceKind = "file"
	SourcePaste SourceKind = "paste"
)

// SessionState is the lifecycle state of an import session.
type SessionState string

// Session state constants.
const (
	StateUploading  SessionState = "UPLOADING"
	StateParsing    SessionState = "PARSING"
	StateProcessing SessionState = "PROCESSING"
	StateEnriching  SessionState = "ENRICHING"
	StateCompleted  SessionState = "COMPLETED"
	StateFinalized  SessionState = "FINALIZED"
	StateError      SessionState = "ERROR"
)

// sessionTransitions is the closed transition table. A state may only advance
// to one of its listed successors; Error is reachable from every non-terminal
// state and Finalized only follows Completed.
var sessionTransitions = map[SessionState][]SessionState{
	StateUploading:  {StateParsing, StateError},
	StateParsing:    {StateProcessing, StateError},
	StateProcessing: {StateEnriching, StateError},
	StateEnriching:  {StateCompleted, StateError},
	StateCompleted:  {StateFinalized, StateError},
	StateFinalized:  {},
	StateError:      {},
}

// ValidState reports whether s is a member of the closed state enumeration.
func ValidState(s SessionState) bool {
	_, ok := sessionTransitions[s]
	return ok
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to SessionState) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state has no successors.
func IsTerminal(s SessionState) bool {
	return len(sessionTransitions[s]) == 0
}

// SessionCounters holds the row counters reported by pipeline stages.
// Counters only ever grow; a stage writes them together with the state it
// advances to so the pair is never observed half-updated.
type SessionCounters struct {
	TotalRows      int
	ProcessedRows  int
	SuccessfulRows int
	ErrorRows      int
}

// ImportSession tracks one batch import from upload through finalization.
type ImportSession struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        string
	Owner     string
	Source    SourceKind
	State     SessionState
	ErrorText string
	Counters  SessionCounters
}

// Validate checks the structural invariants of a session.
func (s *ImportSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if s.Owner == "" {
		return fmt.Errorf("session owner is required")
	}
	if s.Source != SourceFile && s.Source != SourcePaste {
		return fmt.Errorf("invalid source kind %q", s.Source)
	}
	if !ValidState(s.State) {
		return fmt.Errorf("invalid session state %q", s.State)
	}
	c := s.Counters
	if c.TotalRows < 0 || c.ProcessedRows < 0 || c.SuccessfulRows < 0 || c.ErrorRows < 0 {
		return fmt.Errorf("session counters must be non-negative")
	}
	return nil
}
