package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitByKey limits requests per minute keyed by the API key header,
// falling back to the client IP for unauthenticated requests. The limit is
// server-wide; each credential's rate_limit column is advisory metadata
// surfaced to operators through list/stats.
func RateLimitByKey(headerName string, requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if key := r.Header.Get(headerName); key != "" {
				return key, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
