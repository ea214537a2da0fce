package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

// SearchEntries returns the owner's finalized ledger entries dated within
// windowDays of the given date. Used by the duplicate detector.
func (s *SQLiteStorage) SearchEntries(ctx context.Context, owner string, around time.Time, windowDays int) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(owner, "owner"); err != nil {
		return nil, err
	}

	window := time.Duration(windowDays) * 24 * time.Hour
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, date, description, amount, direction,
			category, account, session_id, created_at
		FROM ledger_entries
		WHERE owner = ? AND date BETWEEN ? AND ?
		ORDER BY date ASC, id ASC
	`, owner, around.Add(-window), around.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to search ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var direction string
		if err := rows.Scan(
			&e.ID, &e.Owner, &e.Date, &e.Description, &e.Amount, &direction,
			&e.Category, &e.Account, &e.SessionID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Direction = model.Direction(direction)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

// FinalizeSession commits approved entries to the ledger, records exactly one
// balance-adjustment intent per entry, clears the session's staged records,
// and moves the session from Completed to Finalized — all in one transaction.
// Any failure rolls the whole batch back and leaves the session Completed.
func (s *SQLiteStorage) FinalizeSession(ctx context.Context, sessionID string, entries []model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin finalize: %v", common.ErrStorageFailure, err)
	}
	defer func() { _ = tx.Rollback() }()

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (
			id, owner, date, description, amount, direction, category, account, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare ledger insert: %v", common.ErrStorageFailure, err)
	}
	defer func() { _ = entryStmt.Close() }()

	intentStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO balance_intents (entry_id, owner, account, direction, amount)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare intent insert: %v", common.ErrStorageFailure, err)
	}
	defer func() { _ = intentStmt.Close() }()

	for _, e := range entries {
		if _, err := entryStmt.ExecContext(ctx,
			e.ID, e.Owner, e.Date, e.Description, e.Amount,
			string(e.Direction), e.Category, e.Account, e.SessionID,
		); err != nil {
			return fmt.Errorf("%w: failed to write ledger entry %s: %v", common.ErrStorageFailure, e.ID, err)
		}
		if _, err := intentStmt.ExecContext(ctx,
			e.ID, e.Owner, e.Account, string(e.Direction), e.Amount,
		); err != nil {
			return fmt.Errorf("%w: failed to write balance intent for %s: %v", common.ErrStorageFailure, e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staged_records WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("%w: failed to clear staged records: %v", common.ErrStorageFailure, err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE import_sessions
		SET state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = ?
	`, string(model.StateFinalized), sessionID, string(model.StateCompleted))
	if err != nil {
		return fmt.Errorf("%w: failed to finalize session: %v", common.ErrStorageFailure, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check finalize update: %v", common.ErrStorageFailure, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s is not in state %s", common.ErrInvalidTransition, sessionID, model.StateCompleted)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit finalize: %v", common.ErrStorageFailure, err)
	}
	return nil
}
