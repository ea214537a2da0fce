// Package finalize commits user-approved staged records to the ledger store.
package finalize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

// Store is the slice of the storage contract the finalizer consumes.
type Store interface {
	GetSession(ctx context.Context, id string) (*model.ImportSession, error)
	ListStagedRecords(ctx context.Context, sessionID string) ([]model.StagedRecord, error)
	FinalizeSession(ctx context.Context, sessionID string, entries []model.LedgerEntry) error
}

// Approval names one staged record the user approved for commit, with an
// optional category/account override.
type Approval struct {
	Category string
	Account  string
	Sequence int
}

// Rejection reports one approved record that failed validation. Rejections
// never abort the batch; the remaining records still commit.
type Rejection struct {
	Reason   string
	Sequence int
}

// Result summarizes one finalize call.
type Result struct {
	Rejections []Rejection
	Committed  int
}

// Finalizer validates approved records and writes them as one atomic batch.
type Finalizer struct {
	store Store
}

// New creates a Finalizer.
func New(store Store) *Finalizer {
	return &Finalizer{store: store}
}

// Finalize commits the approved records of a Completed session. Records
// failing validation are individually rejected and reported while the others
// proceed; the accepted set is written as a single atomic batch with exactly
// one balance-adjustment intent per record. A sequence approved more than
// once commits once; the repeats are rejected. A storage failure rolls the
// batch back and leaves the session Completed for retry.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string, approvals []Approval) (*Result, error) {
	session, err := f.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != model.StateCompleted {
		return nil, fmt.Errorf("%w: session %s is %s, finalize requires %s",
			common.ErrInvalidTransition, sessionID, session.State, model.StateCompleted)
	}

	staged, err := f.store.ListStagedRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	bySequence := make(map[int]*model.StagedRecord, len(staged))
	for i := range staged {
		bySequence[staged[i].Sequence] = &staged[i]
	}

	result := &Result{}
	var entries []model.LedgerEntry
	seen := make(map[int]bool, len(approvals))

	for _, approval := range approvals {
		if seen[approval.Sequence] {
			result.Rejections = append(result.Rejections, Rejection{
				Sequence: approval.Sequence,
				Reason:   "duplicate approval for this sequence",
			})
			continue
		}
		seen[approval.Sequence] = true

		rec, ok := bySequence[approval.Sequence]
		if !ok {
			result.Rejections = append(result.Rejections, Rejection{
				Sequence: approval.Sequence,
				Reason:   "no staged record with this sequence",
			})
			continue
		}
		if reason, ok := validateRecord(rec); !ok {
			result.Rejections = append(result.Rejections, Rejection{
				Sequence: approval.Sequence,
				Reason:   reason,
			})
			continue
		}

		category := approval.Category
		if category == "" {
			category = rec.EffectiveCategory()
		}
		account := approval.Account
		if account == "" {
			account = rec.SuggestedAccount
		}

		entries = append(entries, model.LedgerEntry{
			ID:          uuid.NewString(),
			Owner:       session.Owner,
			Date:        rec.Date,
			Description: rec.Description,
			Amount:      rec.Amount,
			Direction:   rec.Direction,
			Category:    category,
			Account:     account,
			SessionID:   sessionID,
		})
	}

	if err := f.store.FinalizeSession(ctx, sessionID, entries); err != nil {
		return nil, err
	}

	result.Committed = len(entries)
	slog.Info("Session finalized",
		"session_id", sessionID,
		"committed", result.Committed,
		"rejected", len(result.Rejections))
	return result, nil
}

// validateRecord checks the fields a ledger commit needs. The category may
// be null; a missing date or amount rejects the record.
func validateRecord(rec *model.StagedRecord) (string, bool) {
	if rec.Status == model.RecordFailed {
		return "record failed during import: " + rec.ErrorText, false
	}
	if rec.Date.IsZero() {
		return "missing date", false
	}
	if rec.Amount < 0 {
		return "negative amount", false
	}
	if !model.ValidDirection(rec.Direction) {
		return fmt.Sprintf("invalid direction %q", rec.Direction), false
	}
	return "", true
}
