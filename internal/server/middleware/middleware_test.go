package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aigate/aigate/internal/model"
	"github.com/aigate/aigate/internal/service"
	"github.com/aigate/aigate/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthFixture(t *testing.T) (*store.Store, *service.AuthService, *service.KeyService) {
	t.Helper()
	st, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, service.NewAuthService(st, testLogger()), service.NewKeyService(st, testLogger())
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestRequestIDGenerated(t *testing.T) {
	var seenID string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if seenID == "" {
		t.Fatal("expected a generated request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seenID {
		t.Errorf("header %q does not match context ID %q", got, seenID)
	}
}

func TestRequestIDClientSupplied(t *testing.T) {
	h := RequestID(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "client-chosen")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-chosen" {
		t.Errorf("got request ID %q, want %q", got, "client-chosen")
	}
}

func TestAuthenticateMissingKey(t *testing.T) {
	_, authSvc, _ := newAuthFixture(t)
	h := Authenticate(authSvc, "X-API-Key", "/v1", false)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/generate/chat", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rec.Code)
	}
	var body model.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != http.StatusUnauthorized {
		t.Errorf("got error code %d, want 401", body.Error.Code)
	}
}

func TestAuthenticateInvalidKey(t *testing.T) {
	_, authSvc, _ := newAuthFixture(t)
	h := Authenticate(authSvc, "X-API-Key", "/v1", false)(okHandler())

	req := httptest.NewRequest("POST", "/v1/generate/chat", nil)
	req.Header.Set("X-API-Key", "ai_bogus")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rec.Code)
	}
}

func TestAuthenticateSuccessAttachesKeyAndAudits(t *testing.T) {
	st, authSvc, keySvc := newAuthFixture(t)
	plaintext, minted, err := keySvc.CreateKey(context.Background(), service.CreateKeyParams{Name: "worker"})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	var ctxKey *model.APIKey
	h := Authenticate(authSvc, "X-API-Key", "/v1", false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxKey = GetAPIKey(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/v1/generate/chat", nil)
	req.Header.Set("X-API-Key", plaintext)
	req.RemoteAddr = "10.9.8.7:54321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if ctxKey == nil || ctxKey.KeyPrefix != minted.KeyPrefix {
		t.Errorf("credential not attached to context, got %+v", ctxKey)
	}

	// Exactly one audit entry with the mount prefix stripped and port-free IP.
	stats, err := st.KeyStats(context.Background(), minted.KeyPrefix)
	if err != nil {
		t.Fatalf("KeyStats: %v", err)
	}
	if stats.TotalRequests != 1 {
		t.Errorf("got %d audit entries, want 1", stats.TotalRequests)
	}
}

func TestAuthenticateScopeUsesStrippedPath(t *testing.T) {
	_, authSvc, keySvc := newAuthFixture(t)
	plaintext, _, err := keySvc.CreateKey(context.Background(), service.CreateKeyParams{
		Name:             "scoped",
		AllowedEndpoints: []string{"/generate"},
	})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	h := Authenticate(authSvc, "X-API-Key", "/v1", false)(okHandler())

	// The stored scope "/generate" must match "/v1/generate/chat".
	req := httptest.NewRequest("POST", "/v1/generate/chat", nil)
	req.Header.Set("X-API-Key", plaintext)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("scoped request got status %d, want 200", rec.Code)
	}

	req = httptest.NewRequest("POST", "/v1/embeddings", nil)
	req.Header.Set("X-API-Key", plaintext)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("out-of-scope request got status %d, want 403", rec.Code)
	}
}

func TestAuthenticateAdminRequired(t *testing.T) {
	_, authSvc, keySvc := newAuthFixture(t)
	plainKey, _, err := keySvc.CreateKey(context.Background(), service.CreateKeyParams{Name: "plain"})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	adminKey, _, err := keySvc.CreateKey(context.Background(), service.CreateKeyParams{Name: "admin", IsAdmin: true})
	if err != nil {
		t.Fatalf("CreateKey admin: %v", err)
	}

	h := Authenticate(authSvc, "X-API-Key", "/v1", true)(okHandler())

	req := httptest.NewRequest("GET", "/v1/admin/keys/list", nil)
	req.Header.Set("X-API-Key", plainKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin got status %d, want 403", rec.Code)
	}

	req = httptest.NewRequest("GET", "/v1/admin/keys/list", nil)
	req.Header.Set("X-API-Key", adminKey)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin got status %d, want 200", rec.Code)
	}
}

func TestAuthenticateFailsClosedOnStoreError(t *testing.T) {
	st, authSvc, _ := newAuthFixture(t)
	st.Close() // simulate storage outage

	h := Authenticate(authSvc, "X-API-Key", "/v1", false)(okHandler())

	req := httptest.NewRequest("POST", "/v1/generate/chat", nil)
	req.Header.Set("X-API-Key", "ai_whatever")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}

func TestRateLimitByKey(t *testing.T) {
	h := RateLimitByKey("X-API-Key", 3)(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/v1/generate/chat", nil)
		req.Header.Set("X-API-Key", "ai_limited")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d got status %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("GET", "/v1/generate/chat", nil)
	req.Header.Set("X-API-Key", "ai_limited")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("got status %d, want 429 after limit", rec.Code)
	}

	// A different key has its own bucket.
	req = httptest.NewRequest("GET", "/v1/generate/chat", nil)
	req.Header.Set("X-API-Key", "ai_other")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200 for a fresh key", rec.Code)
	}
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	ww := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	ww.WriteHeader(http.StatusTeapot)
	ww.WriteHeader(http.StatusOK) // second call must be ignored
	ww.Write([]byte("body"))

	if ww.status != http.StatusTeapot {
		t.Errorf("got status %d, want %d", ww.status, http.StatusTeapot)
	}
	if ww.bytes != 4 {
		t.Errorf("got %d bytes, want 4", ww.bytes)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("recorder got status %d, want %d", rec.Code, http.StatusTeapot)
	}
}
