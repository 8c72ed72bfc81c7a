package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout attaches a deadline to every request context. Handlers and the
// engine below them observe cancellation through the context; the
// response itself is still written by the handler, which maps the
// deadline error to its status code.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
