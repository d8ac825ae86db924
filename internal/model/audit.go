package model

import "time"

// AuditEntry is one append-only record of a validated access. Entries are
// never updated or deleted once written.
type AuditEntry struct {
	ID         int64     `json:"id" db:"id"`
	KeyPrefix  string    `json:"key_prefix" db:"key_prefix"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	Method     string    `json:"method" db:"method"`
	StatusCode int       `json:"status_code" db:"status_code"`
	IPAddress  string    `json:"ip_address" db:"ip_address"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

// KeyStats summarizes audit history and usage for a single key.
type KeyStats struct {
	KeyPrefix       string     `json:"key_prefix"`
	TotalRequests   int64      `json:"total_requests" db:"total_requests"`
	UniqueEndpoints int64      `json:"unique_endpoints" db:"unique_endpoints"`
	FirstRequest    *time.Time `json:"first_request,omitempty" db:"first_request"`
	LastRequest     *time.Time `json:"last_request,omitempty" db:"last_request"`
	UsageCount      int64      `json:"usage_count" db:"usage_count"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	IsAdmin         bool       `json:"is_admin" db:"is_admin"`
}

// GlobalStats summarizes the whole credential store.
type GlobalStats struct {
	TotalKeys     int64 `json:"total_keys" db:"total_keys"`
	ActiveKeys    int64 `json:"active_keys" db:"active_keys"`
	AdminKeys     int64 `json:"admin_keys" db:"admin_keys"`
	TotalRequests int64 `json:"total_requests" db:"total_requests"`
}
