package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PL7092/MyMoney-sub001/internal/rules"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS import_sessions (
					id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					source TEXT NOT NULL,
					state TEXT NOT NULL,
					total_rows INTEGER NOT NULL DEFAULT 0,
					processed_rows INTEGER NOT NULL DEFAULT 0,
					successful_rows INTEGER NOT NULL DEFAULT 0,
					error_rows INTEGER NOT NULL DEFAULT 0,
					error_text TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_sessions_owner ON import_sessions(owner)`,

				`CREATE TABLE IF NOT EXISTS staged_records (
					session_id TEXT NOT NULL,
					sequence INTEGER NOT NULL,
					raw_data TEXT NOT NULL DEFAULT '',
					date DATETIME,
					description TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL DEFAULT 0,
					direction TEXT NOT NULL DEFAULT '',
					suggested_category TEXT NOT NULL DEFAULT '',
					suggested_account TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					matched_rule_id INTEGER,
					is_duplicate INTEGER NOT NULL DEFAULT 0,
					duplicate_confidence REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					error_text TEXT NOT NULL DEFAULT '',
					reviewed_category TEXT NOT NULL DEFAULT '',
					reviewed_at DATETIME,
					PRIMARY KEY (session_id, sequence),
					FOREIGN KEY (session_id) REFERENCES import_sessions(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner TEXT NOT NULL DEFAULT '',
					kind TEXT NOT NULL,
					name TEXT NOT NULL,
					keywords TEXT NOT NULL DEFAULT '',
					amount_min REAL,
					amount_max REAL,
					window_days INTEGER,
					similarity_threshold REAL,
					action_direction TEXT,
					category TEXT NOT NULL DEFAULT '',
					account TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL DEFAULT 100,
					is_active INTEGER NOT NULL DEFAULT 1,
					is_system INTEGER NOT NULL DEFAULT 0,
					usage_count INTEGER NOT NULL DEFAULT 0,
					success_rate REAL NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(owner, name)
				)`,
				`CREATE INDEX idx_rules_lookup ON rules(owner, kind, is_active, priority)`,

				`CREATE TABLE IF NOT EXISTS feedback_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL,
					record_sequence INTEGER NOT NULL,
					rule_id INTEGER,
					choice TEXT NOT NULL,
					chosen_category TEXT NOT NULL DEFAULT '',
					create_rule INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(session_id, record_sequence)
				)`,

				`CREATE TABLE IF NOT EXISTS ledger_entries (
					id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL,
					direction TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					account TEXT NOT NULL DEFAULT '',
					session_id TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_ledger_owner_date ON ledger_entries(owner, date)`,

				`CREATE TABLE IF NOT EXISTS balance_intents (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					entry_id TEXT NOT NULL UNIQUE,
					owner TEXT NOT NULL,
					account TEXT NOT NULL DEFAULT '',
					direction TEXT NOT NULL,
					amount REAL NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (entry_id) REFERENCES ledger_entries(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Seed system rules",
		Up: func(tx *sql.Tx) error {
			query := `
				INSERT OR IGNORE INTO rules (
					owner, kind, name, keywords, amount_min, amount_max,
					window_days, similarity_threshold, action_direction,
					category, account, confidence, priority, is_active, is_system
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			`
			for _, rule := range rules.SystemRules() {
				if _, err := tx.Exec(query,
					rule.Owner, string(rule.Kind), rule.Name, strings.Join(rule.Keywords, " "),
					rule.AmountMin, rule.AmountMax, rule.WindowDays, rule.SimilarityThreshold,
					directionToNull(rule.ActionDirection), rule.Category, rule.Account,
					rule.Confidence, rule.Priority, rule.IsActive,
				); err != nil {
					return fmt.Errorf("failed to seed rule %q: %w", rule.Name, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending migrations in order.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Debug("Applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
