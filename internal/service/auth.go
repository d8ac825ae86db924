package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aigate/aigate/internal/model"
	"github.com/aigate/aigate/internal/store"
)

// Validation errors form the business taxonomy the HTTP boundary translates
// to status codes. Anything outside this set is an infrastructure error and
// must fail closed.
var (
	ErrKeyMissing        = errors.New("api key missing")
	ErrKeyInvalid        = errors.New("invalid api key")
	ErrKeyExpired        = errors.New("api key expired")
	ErrAdminRequired     = errors.New("admin privileges required")
	ErrEndpointForbidden = errors.New("api key not authorized for endpoint")
)

// IsAuthError reports whether err belongs to the validation taxonomy, as
// opposed to an infrastructure failure (storage unavailable, timeout).
func IsAuthError(err error) bool {
	return errors.Is(err, ErrKeyMissing) ||
		errors.Is(err, ErrKeyInvalid) ||
		errors.Is(err, ErrKeyExpired) ||
		errors.Is(err, ErrAdminRequired) ||
		errors.Is(err, ErrEndpointForbidden)
}

// AuthService is the authentication/authorization decision function invoked
// on every protected request. It is transport-agnostic; the HTTP middleware
// maps its errors to status codes.
type AuthService struct {
	store  *store.Store
	logger *slog.Logger

	// now is swappable so tests can advance the clock past an expiry.
	now func() time.Time
}

// NewAuthService creates an AuthService backed by the given store.
func NewAuthService(st *store.Store, logger *slog.Logger) *AuthService {
	return &AuthService{store: st, logger: logger, now: time.Now}
}

// Validate checks the raw key against the store and the request's resource
// path. The checks short-circuit in a fixed order: presence, lookup among
// active rows, admin requirement, expiration, endpoint scope. A key holder
// learns "forbidden" only after authenticating; expiry and scope details are
// never leaked for unknown keys.
//
// On success the key's usage counters are updated synchronously before the
// credential is returned, so a concurrent revocation or a later stats read
// never observes a stale count.
func (s *AuthService) Validate(ctx context.Context, rawKey, resourcePath string, requireAdmin bool) (*model.APIKey, error) {
	if rawKey == "" {
		return nil, ErrKeyMissing
	}

	hash := store.HashKey(rawKey)
	key, err := s.store.GetActiveKeyByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("invalid api key presented", "prefix", safePrefix(rawKey))
			return nil, ErrKeyInvalid
		}
		// Storage failure: fail closed, but keep it distinguishable from a
		// business rejection.
		return nil, fmt.Errorf("key lookup: %w", err)
	}

	// The query already excludes inactive rows; re-check for defense in depth.
	if !key.IsActive {
		return nil, ErrKeyInvalid
	}

	if requireAdmin && !key.IsAdmin {
		s.logger.Warn("admin access attempted with non-admin key", "prefix", key.KeyPrefix)
		return nil, ErrAdminRequired
	}

	if key.Expired(s.now()) {
		return nil, ErrKeyExpired
	}

	if !key.Unrestricted() && !scopeAllows(key.AllowedEndpoints, resourcePath) {
		return nil, fmt.Errorf("%w: %s", ErrEndpointForbidden, resourcePath)
	}

	if err := s.store.UpdateKeyUsage(ctx, hash); err != nil {
		return nil, fmt.Errorf("update key usage: %w", err)
	}

	return key, nil
}

// RecordAccess appends an audit entry for a validated request. Audit write
// failures must never fail the triggering request, so errors are logged and
// swallowed here.
func (s *AuthService) RecordAccess(ctx context.Context, prefix, endpoint, method string, statusCode int, ipAddress string) {
	entry := &model.AuditEntry{
		KeyPrefix:  prefix,
		Endpoint:   endpoint,
		Method:     method,
		StatusCode: statusCode,
		IPAddress:  ipAddress,
	}
	if err := s.store.AppendAuditEntry(ctx, entry); err != nil {
		s.logger.Warn("audit log append failed", "prefix", prefix, "endpoint", endpoint, "error", err)
	}
}

// NormalizePath canonicalizes a resource path for scope comparison:
// lower-cased, leading slash enforced, trailing slashes trimmed (the root
// stays "/"). Stored scope entries go through the same function at creation
// time, so both sides of the comparison share one rule.
func NormalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// scopeAllows reports whether the comma-joined allowed list authorizes the
// resource path. An entry matches on equality or as a parent segment:
// "/generate" authorizes "/generate/chat" but never "/generated".
func scopeAllows(allowed, resourcePath string) bool {
	path := NormalizePath(resourcePath)
	for _, entry := range strings.Split(allowed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == model.EndpointsAll {
			return true
		}
		entry = NormalizePath(entry)
		if path == entry || strings.HasPrefix(path, entry+"/") {
			return true
		}
	}
	return false
}

// safePrefix returns a loggable fragment of a raw key without revealing it.
func safePrefix(rawKey string) string {
	if len(rawKey) <= 12 {
		return rawKey
	}
	return rawKey[:12] + "..."
}
