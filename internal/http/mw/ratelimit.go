package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitByUser returns a middleware that rate limits by user ID.
// Should be applied AFTER Auth; unauthenticated requests are keyed by IP.
// A limit of 0 disables limiting.
func RateLimitByUser(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
		}),
	)
}

func userKey(r *http.Request) (string, error) {
	claims := GetUserClaims(r.Context())
	if claims == nil || claims.UserID == "" {
		return httprate.KeyByIP(r)
	}
	return "user:" + claims.UserID, nil
}
