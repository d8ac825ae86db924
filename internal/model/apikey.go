package model

import "time"

// EndpointsAll is the sentinel stored in allowed_endpoints for keys without
// an endpoint restriction.
const EndpointsAll = "*"

// APIKey represents an issued credential. The raw key is never stored; only
// a SHA-256 hash and a short prefix for identification are persisted.
type APIKey struct {
	ID               int64      `json:"id" db:"id"`
	KeyHash          string     `json:"-" db:"key_hash"`            // SHA-256 hash, never expose
	KeyPrefix        string     `json:"key_prefix" db:"key_prefix"` // First 12 chars for identification
	Name             string     `json:"name" db:"name"`
	Description      string     `json:"description" db:"description"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	RateLimit        int        `json:"rate_limit" db:"rate_limit"` // requests/minute, advisory
	AllowedEndpoints string     `json:"allowed_endpoints" db:"allowed_endpoints"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	UsageCount       int64      `json:"usage_count" db:"usage_count"`
	IsAdmin          bool       `json:"is_admin" db:"is_admin"`
}

// Expired reports whether the key's expiration, if any, lies before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// Unrestricted reports whether the key may call any endpoint.
func (k *APIKey) Unrestricted() bool {
	return k.AllowedEndpoints == "" || k.AllowedEndpoints == EndpointsAll
}
