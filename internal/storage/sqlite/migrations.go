package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ExpectedSchemaVersion is the schema version this build runs against.
const ExpectedSchemaVersion = 2

// Migration is one forward-only schema step.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Directory and ledger tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					phone_key TEXT UNIQUE,
					username TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL DEFAULT '',
					plan TEXT NOT NULL DEFAULT 'free',
					locale TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS contacts (
					user_id TEXT NOT NULL REFERENCES users(id),
					contact_id TEXT NOT NULL REFERENCES users(id),
					PRIMARY KEY (user_id, contact_id)
				)`,
				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					name TEXT NOT NULL,
					kind TEXT NOT NULL CHECK (kind IN ('EXPENSE', 'INCOME')),
					position INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_categories_user ON categories(user_id, kind)`,
				`CREATE TABLE IF NOT EXISTS cards (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					name TEXT NOT NULL,
					brand TEXT NOT NULL DEFAULT '',
					position INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_cards_user ON cards(user_id)`,
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					kind TEXT NOT NULL,
					amount TEXT NOT NULL,
					total_amount TEXT NOT NULL,
					description TEXT NOT NULL,
					category_id TEXT NOT NULL REFERENCES categories(id),
					payment_method TEXT NOT NULL,
					card_id TEXT REFERENCES cards(id),
					date DATETIME NOT NULL,
					installment_index INTEGER,
					installment_total INTEGER,
					parent_id TEXT,
					source TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS transaction_shares (
					transaction_id TEXT PRIMARY KEY REFERENCES transactions(id),
					user_id TEXT NOT NULL REFERENCES users(id),
					amount TEXT NOT NULL,
					division TEXT NOT NULL,
					value TEXT
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Indexes for plan usage counters",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_transactions_usage ON transactions(user_id, source, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_parent ON transactions(parent_id)`,
				`CREATE INDEX IF NOT EXISTS idx_shares_user ON transaction_shares(user_id)`,
			})
		},
	},
}

// Migrate applies every migration newer than the database's user_version.
func (s *Store) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		s.log.Info().Int("version", m.Version).Str("description", m.Description).Msg("applied migration")
	}

	var final int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&final); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}
