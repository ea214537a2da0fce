package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

// CreateSession durably records a new session. The caller gets control back
// as soon as this returns; pipeline stages run afterwards.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *model.ImportSession) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("%w: session", ErrNilParameter)
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_sessions (
			id, owner, source, state,
			total_rows, processed_rows, successful_rows, error_rows, error_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID, session.Owner, string(session.Source), string(session.State),
		session.Counters.TotalRows, session.Counters.ProcessedRows,
		session.Counters.SuccessfulRows, session.Counters.ErrorRows, session.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*model.ImportSession, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var session model.ImportSession
	var source, state string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner, source, state,
			total_rows, processed_rows, successful_rows, error_rows, error_text,
			created_at, updated_at
		FROM import_sessions WHERE id = ?
	`, id).Scan(
		&session.ID, &session.Owner, &source, &state,
		&session.Counters.TotalRows, &session.Counters.ProcessedRows,
		&session.Counters.SuccessfulRows, &session.Counters.ErrorRows, &session.ErrorText,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.Source = model.SourceKind(source)
	session.State = model.SessionState(state)
	return &session, nil
}

// AdvanceSession moves a session from one state to another and writes the
// reported counters in the same statement. The WHERE clause re-checks the
// expected current state, so a session concurrently deleted or moved to a
// terminal state makes this fail instead of overwriting it.
func (s *SQLiteStorage) AdvanceSession(ctx context.Context, id string, from, to model.SessionState, counters model.SessionCounters, errorText string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, from, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE import_sessions
		SET state = ?, total_rows = ?, processed_rows = ?,
			successful_rows = ?, error_rows = ?, error_text = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = ?
			AND total_rows <= ? AND processed_rows <= ?
			AND successful_rows <= ? AND error_rows <= ?
	`,
		string(to), counters.TotalRows, counters.ProcessedRows,
		counters.SuccessfulRows, counters.ErrorRows, errorText,
		id, string(from),
		counters.TotalRows, counters.ProcessedRows,
		counters.SuccessfulRows, counters.ErrorRows,
	)
	if err != nil {
		return fmt.Errorf("failed to advance session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check session update: %w", err)
	}
	if affected == 0 {
		// Either the session is gone or it is no longer in the expected
		// state; distinguish so in-flight stages can abort cleanly.
		var state string
		scanErr := s.db.QueryRowContext(ctx,
			`SELECT state FROM import_sessions WHERE id = ?`, id).Scan(&state)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", common.ErrSessionNotFound, id)
		}
		if scanErr != nil {
			return fmt.Errorf("failed to inspect session state: %w", scanErr)
		}
		return fmt.Errorf("%w: session %s is %s, expected %s", common.ErrInvalidTransition, id, state, from)
	}
	return nil
}

// DeleteSession removes a session and, via the cascade, its staged records.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM import_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check session delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", common.ErrSessionNotFound, id)
	}
	return nil
}
