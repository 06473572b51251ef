package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/repopulse/repopulse/internal/api/response"
)

// Recovery turns handler panics into a 500 error envelope instead of a
// dropped connection. http.ErrAbortHandler is re-raised so the server
// keeps its usual abort behavior.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
