package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aigate/aigate/internal/model"
	"github.com/aigate/aigate/internal/service"
)

type contextKeyAuth string

// AuthKeyKey is the context key for the authenticated credential.
const AuthKeyKey contextKeyAuth = "auth_api_key"

// Authenticate validates the request's API key before any handler work.
// The secret is read from the configured header; the resource path passed to
// the validator is the request path with the API mount prefix stripped, so
// stored scopes match what clients see in the docs ("/generate/chat", not
// "/v1/generate/chat").
//
// Rejections map to 401 for authentication failures (missing, invalid,
// expired) and 403 for authorization failures (admin or endpoint scope).
// Storage failures fail closed with 503, never treated as a pass.
//
// On success the credential is attached to the context and, after the
// handler runs, exactly one audit entry is appended with the resolved status
// code. Audit failures are swallowed inside RecordAccess.
func Authenticate(authSvc *service.AuthService, headerName, apiPrefix string, requireAdmin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(headerName)
			resource := strings.TrimPrefix(r.URL.Path, apiPrefix)

			key, err := authSvc.Validate(r.Context(), rawKey, resource, requireAdmin)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), AuthKeyKey, key)
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(ctx))

			authSvc.RecordAccess(r.Context(), key.KeyPrefix, resource, r.Method, ww.status, clientAddr(r))
		})
	}
}

// GetAPIKey extracts the authenticated credential from the context. Returns
// nil for unauthenticated requests.
func GetAPIKey(ctx context.Context) *model.APIKey {
	if k, ok := ctx.Value(AuthKeyKey).(*model.APIKey); ok {
		return k
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	var status int
	var message string

	switch {
	case errors.Is(err, service.ErrKeyMissing):
		status, message = http.StatusUnauthorized, "API key missing"
	case errors.Is(err, service.ErrKeyInvalid):
		status, message = http.StatusUnauthorized, "Invalid API key"
	case errors.Is(err, service.ErrKeyExpired):
		status, message = http.StatusUnauthorized, "API key expired"
	case errors.Is(err, service.ErrAdminRequired):
		status, message = http.StatusForbidden, "Admin privileges required"
	case errors.Is(err, service.ErrEndpointForbidden):
		status, message = http.StatusForbidden, "API key not authorized for this endpoint"
	default:
		// Infrastructure failure: fail closed without leaking details.
		status, message = http.StatusServiceUnavailable, "Authentication temporarily unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}

// clientAddr returns the request's remote address without the port.
func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return addr
}
