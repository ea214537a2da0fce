package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PL7092/MyMoney-sub001/internal/model"
)

const ruleColumns = `id, owner, kind, name, keywords, amount_min, amount_max,
	window_days, similarity_threshold, action_direction, category, account,
	confidence, priority, is_active, is_system, usage_count, success_rate,
	created_at, updated_at`

// CreateRule inserts a new rule. Name collisions within an owner resolve via
// the UNIQUE(owner, name) constraint rather than a lock; the caller gets
// common.ErrRuleConflict and the existing rule stays untouched.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	return insertRuleTx(ctx, s.db, rule)
}

// GetRule retrieves a rule by id.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns the rules of the given kind visible to an owner: the
// owner's own plus global ones, ordered by priority then recency.
func (s *SQLiteStorage) ListRules(ctx context.Context, owner string, kind model.RuleKind, activeOnly bool) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + `
		FROM rules
		WHERE (owner = '' OR owner = ?) AND kind = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY priority ASC, updated_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, owner, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return out, nil
}

// IncrementRuleUsage bumps a rule's usage counter without blocking the
// caller. The counter is a popularity signal; a lost update under
// concurrency is acceptable, so failures are only logged.
func (s *SQLiteStorage) IncrementRuleUsage(id int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := s.db.ExecContext(ctx,
			`UPDATE rules SET usage_count = usage_count + 1 WHERE id = ?`, id); err != nil {
			slog.Debug("Failed to increment rule usage", "rule_id", id, "error", err)
		}
	}()
}

// UpdateRuleStats writes a rule's learned success rate. Usage statistics are
// the one mutation allowed on immutable system rules.
func (s *SQLiteStorage) UpdateRuleStats(ctx context.Context, id int64, successRate float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if successRate < 0 || successRate > 1 {
		return fmt.Errorf("success rate %v outside [0,1]", successRate)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE rules
		SET success_rate = ?, usage_count = usage_count + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, successRate, id)
	if err != nil {
		return fmt.Errorf("failed to update rule stats: %w", err)
	}
	return nil
}

// SetRuleActive enables or disables a rule. System rules cannot be disabled;
// they are never deleted either.
func (s *SQLiteStorage) SetRuleActive(ctx context.Context, id int64, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_system = 0
	`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rule update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %d not found or is a system rule", id)
	}
	return nil
}

func scanRule(sc scanner) (model.Rule, error) {
	var rule model.Rule
	var kind, keywords string
	var amountMin, amountMax, similarity sql.NullFloat64
	var windowDays sql.NullInt64
	var direction sql.NullString

	if err := sc.Scan(
		&rule.ID, &rule.Owner, &kind, &rule.Name, &keywords, &amountMin, &amountMax,
		&windowDays, &similarity, &direction, &rule.Category, &rule.Account,
		&rule.Confidence, &rule.Priority, &rule.IsActive, &rule.IsSystem,
		&rule.UsageCount, &rule.SuccessRate, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule, err
		}
		return rule, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.Kind = model.RuleKind(kind)
	rule.Keywords = splitKeywords(keywords)
	rule.ActionDirection = nullToDirection(direction)
	if amountMin.Valid {
		v := amountMin.Float64
		rule.AmountMin = &v
	}
	if amountMax.Valid {
		v := amountMax.Float64
		rule.AmountMax = &v
	}
	if windowDays.Valid {
		v := int(windowDays.Int64)
		rule.WindowDays = &v
	}
	if similarity.Valid {
		v := similarity.Float64
		rule.SimilarityThreshold = &v
	}
	return rule, nil
}
