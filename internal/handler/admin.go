package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aigate/aigate/internal/model"
	"github.com/aigate/aigate/internal/service"
	"github.com/aigate/aigate/internal/store"
)

// AdminHandler exposes the privileged key lifecycle over HTTP. Every route
// sits behind the admin-authenticated middleware group; the handlers assume
// the caller already holds a validated admin credential.
type AdminHandler struct {
	keys *service.KeyService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(keys *service.KeyService) *AdminHandler {
	return &AdminHandler{keys: keys}
}

// createKeyRequest is the expected payload for CreateKey.
type createKeyRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	ExpiresInDays    int      `json:"expires_in_days"`
	RateLimit        int      `json:"rate_limit"`
	AllowedEndpoints []string `json:"allowed_endpoints"`
	IsAdmin          bool     `json:"is_admin"`
}

// createKeyResponse includes the plaintext key, shown once only.
type createKeyResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	APIKey    string     `json:"api_key"` // Plaintext, shown ONCE.
	KeyPrefix string     `json:"key_prefix"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateKey generates a new API key, stores its hash, and returns the
// plaintext exactly once.
// POST /v1/admin/keys/create
func (h *AdminHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.ExpiresInDays < 0 {
		writeError(w, http.StatusBadRequest, "expires_in_days must be positive")
		return
	}

	plaintext, key, err := h.keys.CreateKey(r.Context(), service.CreateKeyParams{
		Name:             req.Name,
		Description:      req.Description,
		ExpiresInDays:    req.ExpiresInDays,
		RateLimit:        req.RateLimit,
		AllowedEndpoints: req.AllowedEndpoints,
		IsAdmin:          req.IsAdmin,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "Key hash collision, retry the request")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createKeyResponse{
		Success:   true,
		Message:   "API key created. Save it now - it cannot be retrieved again.",
		APIKey:    plaintext,
		KeyPrefix: key.KeyPrefix,
		ExpiresAt: key.ExpiresAt,
	})
}

// ListKeys returns all credentials without exposing hashes.
// GET /v1/admin/keys/list?active_only=true
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context(), queryBool(r, "active_only"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(keys))
	for i := range keys {
		resources = append(resources, apiKeyToMap(&keys[i]))
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// toggleKeyRequest identifies a key by prefix for revoke/activate.
type toggleKeyRequest struct {
	KeyPrefix string `json:"key_prefix"`
}

// RevokeKey deactivates a credential by prefix. The row is kept, preserving
// audit continuity.
// POST /v1/admin/keys/revoke
func (h *AdminHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	h.toggleKey(w, r, false)
}

// ActivateKey re-enables a previously revoked credential.
// POST /v1/admin/keys/activate
func (h *AdminHandler) ActivateKey(w http.ResponseWriter, r *http.Request) {
	h.toggleKey(w, r, true)
}

func (h *AdminHandler) toggleKey(w http.ResponseWriter, r *http.Request, active bool) {
	var req toggleKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.KeyPrefix == "" {
		writeError(w, http.StatusBadRequest, "key_prefix is required")
		return
	}

	var (
		ok  bool
		err error
	)
	if active {
		ok, err = h.keys.ActivateKey(r.Context(), req.KeyPrefix)
	} else {
		ok, err = h.keys.RevokeKey(r.Context(), req.KeyPrefix)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update API key: "+err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "API key not found: "+req.KeyPrefix)
		return
	}

	action := "revoked"
	if active {
		action = "activated"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key " + req.KeyPrefix + " " + action,
	})
}

// Stats returns per-key aggregates when key_prefix is given, global counts
// otherwise.
// GET /v1/admin/keys/stats?key_prefix=ai_xxxxxxxxx
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	prefix := queryString(r, "key_prefix")

	if prefix != "" {
		stats, err := h.keys.KeyStats(r.Context(), prefix)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "API key not found: "+prefix)
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to aggregate stats: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": stats})
		return
	}

	stats, err := h.keys.GlobalStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate stats: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": stats})
}

// KeyInfo returns one credential's metadata by prefix.
// GET /v1/admin/keys/info/{keyPrefix}
func (h *AdminHandler) KeyInfo(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "keyPrefix")

	key, err := h.keys.KeyInfo(r.Context(), prefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found: "+prefix)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiKeyToMap(key))
}

// apiKeyToMap serializes credential metadata. The hash never leaves the
// store boundary; this map is built from the exported fields only.
func apiKeyToMap(k *model.APIKey) map[string]interface{} {
	m := map[string]interface{}{
		"id":                k.ID,
		"key_prefix":        k.KeyPrefix,
		"name":              k.Name,
		"description":       k.Description,
		"created_at":        k.CreatedAt,
		"is_active":         k.IsActive,
		"rate_limit":        k.RateLimit,
		"allowed_endpoints": k.AllowedEndpoints,
		"usage_count":       k.UsageCount,
		"is_admin":          k.IsAdmin,
	}
	if k.ExpiresAt != nil {
		m["expires_at"] = k.ExpiresAt
	}
	if k.LastUsedAt != nil {
		m["last_used_at"] = k.LastUsedAt
	}
	return m
}
