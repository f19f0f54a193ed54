package mw

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lukas-andre/decollage-cl-sub000/internal/version"
)

// APIVersion returns middleware that adds the X-API-Version header to all
// responses and echoes the request ID assigned by middleware.RequestID.
func APIVersion() func(http.Handler) http.Handler {
	apiVersion := version.Get().Short()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-API-Version", apiVersion)
			if id := middleware.GetReqID(r.Context()); id != "" {
				w.Header().Set(middleware.RequestIDHeader, id)
			}
			next.ServeHTTP(w, r)
		})
	}
}
