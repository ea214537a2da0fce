package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

const stagedColumns = `session_id, sequence, raw_data, date, description, amount,
	direction, suggested_category, suggested_account, confidence,
	matched_rule_id, is_duplicate, duplicate_confidence, status, error_text,
	reviewed_category, reviewed_at`

// SaveStagedRecords inserts a batch of staged records in one transaction.
func (s *SQLiteStorage) SaveStagedRecords(ctx context.Context, records []model.StagedRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO staged_records (`+stagedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		r := &records[i]
		if _, err := stmt.ExecContext(ctx,
			r.SessionID, r.Sequence, r.RawData, nullTime(r.Date), r.Description, r.Amount,
			string(r.Direction), r.SuggestedCategory, r.SuggestedAccount, r.Confidence,
			r.MatchedRuleID, r.IsDuplicate, r.DuplicateConfidence, string(r.Status), r.ErrorText,
			r.ReviewedCategory, r.ReviewedAt,
		); err != nil {
			return fmt.Errorf("failed to insert staged record %d: %w", r.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit staged records: %w", err)
	}
	return nil
}

// UpdateStagedRecords rewrites the pipeline-owned fields of existing records,
// used by the enrichment stage for suggestions and duplicate flags.
func (s *SQLiteStorage) UpdateStagedRecords(ctx context.Context, records []model.StagedRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE staged_records
		SET suggested_category = ?, suggested_account = ?, confidence = ?,
			direction = ?, matched_rule_id = ?, is_duplicate = ?,
			duplicate_confidence = ?, status = ?, error_text = ?
		WHERE session_id = ? AND sequence = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		r := &records[i]
		if _, err := stmt.ExecContext(ctx,
			r.SuggestedCategory, r.SuggestedAccount, r.Confidence,
			string(r.Direction), r.MatchedRuleID, r.IsDuplicate,
			r.DuplicateConfidence, string(r.Status), r.ErrorText,
			r.SessionID, r.Sequence,
		); err != nil {
			return fmt.Errorf("failed to update staged record %d: %w", r.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit staged record updates: %w", err)
	}
	return nil
}

// ListStagedRecords returns all staged records of a session in sequence order.
func (s *SQLiteStorage) ListStagedRecords(ctx context.Context, sessionID string) ([]model.StagedRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stagedColumns+`
		FROM staged_records
		WHERE session_id = ?
		ORDER BY sequence ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.StagedRecord
	for rows.Next() {
		rec, err := scanStagedRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staged records: %w", err)
	}
	return records, nil
}

// GetStagedRecord retrieves a single record by (session, sequence).
func (s *SQLiteStorage) GetStagedRecord(ctx context.Context, sessionID string, sequence int) (*model.StagedRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+stagedColumns+`
		FROM staged_records
		WHERE session_id = ? AND sequence = ?
	`, sessionID, sequence)

	rec, err := scanStagedRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%d", common.ErrRecordNotFound, sessionID, sequence)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanStagedRecord(sc scanner) (model.StagedRecord, error) {
	var rec model.StagedRecord
	var direction, status string
	var date, reviewedAt sql.NullTime
	var matchedRule sql.NullInt64

	if err := sc.Scan(
		&rec.SessionID, &rec.Sequence, &rec.RawData, &date, &rec.Description, &rec.Amount,
		&direction, &rec.SuggestedCategory, &rec.SuggestedAccount, &rec.Confidence,
		&matchedRule, &rec.IsDuplicate, &rec.DuplicateConfidence, &status, &rec.ErrorText,
		&rec.ReviewedCategory, &reviewedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan staged record: %w", err)
	}

	rec.Direction = model.Direction(direction)
	rec.Status = model.RecordStatus(status)
	if matchedRule.Valid {
		v := matchedRule.Int64
		rec.MatchedRuleID = &v
	}
	if date.Valid {
		rec.Date = date.Time
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		rec.ReviewedAt = &t
	}
	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
