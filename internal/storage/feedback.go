package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

// txExecer abstracts *sql.DB and *sql.Tx for writes shared between the
// standalone and transactional paths.
type txExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ApplyFeedback records a feedback event and applies everything it implies —
// the review verdict on the staged record, the matched rule's new success
// rate, and an optional synthesized rule — in one transaction. The
// UNIQUE(session_id, record_sequence) constraint on the event makes repeated
// submissions no-ops: a duplicate commits nothing and returns false. Any
// other failure rolls the whole batch back, event included, so a retry of
// the same feedback starts clean.
func (s *SQLiteStorage) ApplyFeedback(
	ctx context.Context,
	event *model.FeedbackEvent,
	status model.RecordStatus,
	category string,
	successRate *float64,
	newRule *model.Rule,
) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if event == nil {
		return false, fmt.Errorf("%w: event", ErrNilParameter)
	}
	if err := validateString(event.SessionID, "event.SessionID"); err != nil {
		return false, err
	}
	if event.Choice != model.FeedbackAccept && event.Choice != model.FeedbackOverride {
		return false, fmt.Errorf("invalid feedback choice %q", event.Choice)
	}
	if successRate != nil && (*successRate < 0 || *successRate > 1) {
		return false, fmt.Errorf("success rate %v outside [0,1]", *successRate)
	}
	if newRule != nil {
		if err := newRule.Validate(); err != nil {
			return false, fmt.Errorf("invalid rule: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: failed to begin feedback: %v", common.ErrStorageFailure, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO feedback_events (
			session_id, record_sequence, rule_id, choice, chosen_category, create_rule
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, record_sequence) DO NOTHING
	`,
		event.SessionID, event.RecordSequence, event.RuleID,
		string(event.Choice), event.ChosenCategory, event.CreateRule,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check feedback insert: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE staged_records
		SET status = ?, reviewed_category = ?, reviewed_at = CURRENT_TIMESTAMP
		WHERE session_id = ? AND sequence = ?
	`, string(status), category, event.SessionID, event.RecordSequence)
	if err != nil {
		return false, fmt.Errorf("failed to apply review: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check review update: %w", err)
	}
	if affected == 0 {
		return false, fmt.Errorf("%w: %s/%d", common.ErrRecordNotFound, event.SessionID, event.RecordSequence)
	}

	if successRate != nil && event.RuleID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE rules
			SET success_rate = ?, usage_count = usage_count + 1,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, *successRate, *event.RuleID); err != nil {
			return false, fmt.Errorf("failed to update rule stats: %w", err)
		}
	}

	if newRule != nil {
		if err := insertRuleTx(ctx, tx, newRule); err != nil {
			if !errors.Is(err, common.ErrRuleConflict) {
				return false, err
			}
			// An equivalent rule already exists; nothing to learn.
			slog.Debug("Rule already exists", "owner", newRule.Owner, "name", newRule.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: failed to commit feedback: %v", common.ErrStorageFailure, err)
	}
	return true, nil
}

// insertRuleTx inserts a pre-validated rule inside an open transaction. Name
// collisions surface as common.ErrRuleConflict like CreateRule.
func insertRuleTx(ctx context.Context, tx txExecer, rule *model.Rule) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO rules (
			owner, kind, name, keywords, amount_min, amount_max,
			window_days, similarity_threshold, action_direction,
			category, account, confidence, priority, is_active, is_system
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.Owner, string(rule.Kind), rule.Name, strings.Join(rule.Keywords, " "),
		rule.AmountMin, rule.AmountMax, rule.WindowDays, rule.SimilarityThreshold,
		directionToNull(rule.ActionDirection), rule.Category, rule.Account,
		rule.Confidence, rule.Priority, rule.IsActive, rule.IsSystem,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s/%s", common.ErrRuleConflict, rule.Owner, rule.Name)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	return nil
}
