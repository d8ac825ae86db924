package store

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_hash TEXT UNIQUE NOT NULL,
			key_prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME,
			is_active INTEGER NOT NULL DEFAULT 1,
			rate_limit INTEGER NOT NULL DEFAULT 60,
			allowed_endpoints TEXT NOT NULL DEFAULT '*',
			last_used_at DATETIME,
			usage_count INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS api_key_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_prefix TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			status_code INTEGER,
			ip_address TEXT,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON api_key_logs(timestamp)`,

		// v2: admin keys. Pre-existing databases gain the column without
		// losing rows; older rows default to non-admin.
		`ALTER TABLE api_keys ADD COLUMN is_admin INTEGER NOT NULL DEFAULT 0`,

		// v3: key-value settings table (telemetry, instance ID).
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// SQLite ALTER TABLE ADD COLUMN fails if the column already
			// exists; treat "duplicate column" as a no-op so the migration
			// list stays idempotent.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
