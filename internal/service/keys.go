package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aigate/aigate/internal/model"
	"github.com/aigate/aigate/internal/store"
)

const (
	// keyTag is the fixed literal prepended to every generated key so
	// secrets are recognizable in logs without revealing structure.
	keyTag = "ai_"

	// prefixLen is how many leading characters of the plaintext serve as
	// the human-referenceable identifier.
	prefixLen = 12
)

// KeyService exposes the privileged credential lifecycle: mint, revoke,
// reactivate, list, and aggregate stats. Callers are responsible for having
// already validated an admin credential.
type KeyService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewKeyService creates a KeyService backed by the given store.
func NewKeyService(st *store.Store, logger *slog.Logger) *KeyService {
	return &KeyService{store: st, logger: logger}
}

// GenerateKey produces a new high-entropy key: 32 bytes from crypto/rand,
// base64url-encoded, prefixed with the key tag.
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return keyTag + base64.RawURLEncoding.EncodeToString(raw), nil
}

// CreateKeyParams are the creation arguments for a new credential.
type CreateKeyParams struct {
	Name             string
	Description      string
	ExpiresInDays    int // 0 means no expiration
	RateLimit        int
	AllowedEndpoints []string // nil/empty means unrestricted
	IsAdmin          bool
}

// CreateKey generates a key, hashes it, derives the prefix, and inserts the
// credential. The returned plaintext is observable here and nowhere else; it
// cannot be retrieved by any later operation.
func (s *KeyService) CreateKey(ctx context.Context, p CreateKeyParams) (string, *model.APIKey, error) {
	if p.Name == "" {
		return "", nil, fmt.Errorf("key name is required")
	}
	if p.RateLimit <= 0 {
		p.RateLimit = 60
	}

	plaintext, err := GenerateKey()
	if err != nil {
		return "", nil, err
	}

	var expiresAt *time.Time
	if p.ExpiresInDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, p.ExpiresInDays)
		expiresAt = &t
	}

	key := &model.APIKey{
		KeyHash:          store.HashKey(plaintext),
		KeyPrefix:        plaintext[:prefixLen],
		Name:             p.Name,
		Description:      p.Description,
		ExpiresAt:        expiresAt,
		IsActive:         true,
		RateLimit:        p.RateLimit,
		AllowedEndpoints: joinEndpoints(p.AllowedEndpoints),
		IsAdmin:          p.IsAdmin,
	}

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, err
	}

	s.logger.Info("api key created",
		"prefix", key.KeyPrefix, "name", key.Name, "admin", key.IsAdmin)
	return plaintext, key, nil
}

// RevokeKey deactivates the credential with the given prefix. Returns false
// when the prefix matches no row; the credential row itself is never deleted,
// preserving audit continuity.
func (s *KeyService) RevokeKey(ctx context.Context, prefix string) (bool, error) {
	ok, err := s.store.SetKeyActive(ctx, prefix, false)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("api key revoked", "prefix", prefix)
	}
	return ok, nil
}

// ActivateKey re-enables a previously revoked credential.
func (s *KeyService) ActivateKey(ctx context.Context, prefix string) (bool, error) {
	ok, err := s.store.SetKeyActive(ctx, prefix, true)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("api key activated", "prefix", prefix)
	}
	return ok, nil
}

// ListKeys returns credential metadata, newest first. Hashes are excluded
// from serialization by the model.
func (s *KeyService) ListKeys(ctx context.Context, activeOnly bool) ([]model.APIKey, error) {
	return s.store.ListAPIKeys(ctx, activeOnly)
}

// KeyInfo returns one credential's metadata by prefix.
func (s *KeyService) KeyInfo(ctx context.Context, prefix string) (*model.APIKey, error) {
	return s.store.GetKeyByPrefix(ctx, prefix)
}

// KeyStats returns per-key usage aggregates.
func (s *KeyService) KeyStats(ctx context.Context, prefix string) (*model.KeyStats, error) {
	return s.store.KeyStats(ctx, prefix)
}

// GlobalStats returns store-wide counts.
func (s *KeyService) GlobalStats(ctx context.Context) (*model.GlobalStats, error) {
	return s.store.GlobalStats(ctx)
}

// joinEndpoints normalizes and comma-joins an endpoint scope list. An empty
// list, or any entry equal to the sentinel, yields the unrestricted scope.
func joinEndpoints(endpoints []string) string {
	if len(endpoints) == 0 {
		return model.EndpointsAll
	}
	normalized := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if strings.TrimSpace(e) == model.EndpointsAll {
			return model.EndpointsAll
		}
		normalized = append(normalized, NormalizePath(e))
	}
	return strings.Join(normalized, ",")
}
