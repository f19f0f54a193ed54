package mw

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TimeoutConfig defines timeout behavior for different path patterns.
type TimeoutConfig struct {
	// Default timeout for most endpoints
	Default time.Duration
	// Extended timeout for synchronous provider calls
	Extended time.Duration
	// Path substrings that get the extended timeout (e.g. "/generations")
	ExtendedPatterns []string
}

// Timeout bounds the request context. Extended paths also push the
// connection write deadline past the server's WriteTimeout so a slow
// generation can still deliver its response.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timeout := cfg.Default
			extended := false
			for _, pattern := range cfg.ExtendedPatterns {
				if strings.Contains(r.URL.Path, pattern) {
					timeout = cfg.Extended
					extended = true
					break
				}
			}
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			if extended {
				rc := http.NewResponseController(w)
				if err := rc.SetWriteDeadline(time.Now().Add(timeout + 5*time.Second)); err != nil {
					slog.Debug("could not extend write deadline", "path", r.URL.Path, "error", err)
				}
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
