package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/aigate/aigate/internal/model"
)

// Store persists credentials and audit entries in SQLite. Every operation is
// a short, independent transaction; the store holds no in-process credential
// cache, so a revoked key stops working on its very next request.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the store at the given file path. Pass an empty
// string for an in-memory store, which is what the tests use.
func Open(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open key database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate key database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and migrations tooling.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new credential. The key_hash must already be set
// (use HashKey). The ID and CreatedAt fields are populated after insert.
// Returns ErrConflict if a credential with the same hash already exists.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()
	if key.AllowedEndpoints == "" {
		key.AllowedEndpoints = model.EndpointsAll
	}

	const q = `INSERT INTO api_keys
		(key_hash, key_prefix, name, description, created_at, expires_at,
		 is_active, rate_limit, allowed_endpoints, usage_count, is_admin)
		VALUES
		(:key_hash, :key_prefix, :name, :description, :created_at, :expires_at,
		 :is_active, :rate_limit, :allowed_endpoints, :usage_count, :is_admin)`

	result, err := s.db.NamedExecContext(ctx, q, key)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrConflict
		}
		return fmt.Errorf("insert api key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return nil
}

// GetActiveKeyByHash looks up an active credential by its SHA-256 hash.
// Inactive rows are excluded at the query level; the validator re-checks
// IsActive anyway.
func (s *Store) GetActiveKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.GetContext(ctx, &key,
		"SELECT * FROM api_keys WHERE key_hash = ? AND is_active = 1", hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

// GetKeyByPrefix returns a credential by its display prefix.
func (s *Store) GetKeyByPrefix(ctx context.Context, prefix string) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.GetContext(ctx, &key,
		"SELECT * FROM api_keys WHERE key_prefix = ?", prefix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return &key, nil
}

// UpdateKeyUsage sets last_used_at to now and increments usage_count by one.
// The update commits before returning so concurrent validations always see
// consistent counters. A hash that matches no row is a no-op, not an error.
func (s *Store) UpdateKeyUsage(ctx context.Context, hash string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = ?, usage_count = usage_count + 1 WHERE key_hash = ?",
		now, hash)
	if err != nil {
		return fmt.Errorf("update api key usage: %w", err)
	}
	return nil
}

// SetKeyActive toggles the active flag for the credential with the given
// prefix. Returns false (and no error) if the prefix matches no row, so
// callers can distinguish "not found" from a server error.
func (s *Store) SetKeyActive(ctx context.Context, prefix string, active bool) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = ? WHERE key_prefix = ?", active, prefix)
	if err != nil {
		return false, fmt.Errorf("set api key active: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set api key active rows affected: %w", err)
	}
	return n > 0, nil
}

// ListAPIKeys returns all credentials, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, activeOnly bool) ([]model.APIKey, error) {
	q := "SELECT * FROM api_keys"
	if activeOnly {
		q += " WHERE is_active = 1"
	}
	q += " ORDER BY created_at DESC, id DESC"

	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, q); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// AppendAuditEntry writes one access record. The audit log is append-only;
// no update or delete operation is exposed.
func (s *Store) AppendAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	const q = `INSERT INTO api_key_logs
		(key_prefix, endpoint, method, status_code, ip_address, timestamp)
		VALUES
		(:key_prefix, :endpoint, :method, :status_code, :ip_address, :timestamp)`

	result, err := s.db.NamedExecContext(ctx, q, entry)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get audit entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// KeyStats aggregates audit history and usage for one credential. Returns
// ErrNotFound if no credential has the given prefix.
func (s *Store) KeyStats(ctx context.Context, prefix string) (*model.KeyStats, error) {
	key, err := s.GetKeyByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	stats := model.KeyStats{
		KeyPrefix:  key.KeyPrefix,
		UsageCount: key.UsageCount,
		CreatedAt:  key.CreatedAt,
		IsActive:   key.IsActive,
		IsAdmin:    key.IsAdmin,
	}

	const q = `SELECT
			COUNT(*) AS total_requests,
			COUNT(DISTINCT endpoint) AS unique_endpoints,
			MIN(timestamp) AS first_request,
			MAX(timestamp) AS last_request
		FROM api_key_logs WHERE key_prefix = ?`

	row := struct {
		TotalRequests   int64      `db:"total_requests"`
		UniqueEndpoints int64      `db:"unique_endpoints"`
		FirstRequest    *time.Time `db:"first_request"`
		LastRequest     *time.Time `db:"last_request"`
	}{}
	if err := s.db.GetContext(ctx, &row, q, prefix); err != nil {
		return nil, fmt.Errorf("aggregate key stats: %w", err)
	}

	stats.TotalRequests = row.TotalRequests
	stats.UniqueEndpoints = row.UniqueEndpoints
	stats.FirstRequest = row.FirstRequest
	stats.LastRequest = row.LastRequest
	return &stats, nil
}

// GlobalStats aggregates counts across all credentials.
func (s *Store) GlobalStats(ctx context.Context) (*model.GlobalStats, error) {
	const q = `SELECT
			COUNT(*) AS total_keys,
			COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0) AS active_keys,
			COALESCE(SUM(CASE WHEN is_admin = 1 THEN 1 ELSE 0 END), 0) AS admin_keys,
			COALESCE(SUM(usage_count), 0) AS total_requests
		FROM api_keys`

	var stats model.GlobalStats
	if err := s.db.GetContext(ctx, &stats, q); err != nil {
		return nil, fmt.Errorf("aggregate global stats: %w", err)
	}
	return &stats, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value for a settings key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
