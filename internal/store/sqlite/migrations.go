package sqlite

import (
	"context"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			event_url TEXT NOT NULL,
			target_show TEXT NOT NULL DEFAULT '',
			target_area TEXT NOT NULL DEFAULT '',
			ticket_count INTEGER NOT NULL,
			chosen_area TEXT NOT NULL DEFAULT '',
			final_state TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS challenge_attempts (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			length_ok INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL DEFAULT '',
			at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_challenge_attempts_run ON challenge_attempts(run_id);`,
		`CREATE TABLE IF NOT EXISTS login_profiles (
			label TEXT PRIMARY KEY,
			cookies_json TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
