package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/cognito-auth/internal/observability"
	"github.com/upb/cognito-auth/utils"
)

// Recoverer turns a handler panic into a logged JSON 500. http.ErrAbortHandler
// is re-raised so net/http can abort the connection.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				observability.FromContext(r.Context(), logger).Error("panic recovered",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("panic", fmt.Sprint(rvr)),
					zap.Stack("stack"))

				if r.Header.Get("Connection") != "Upgrade" {
					_ = utils.WriteInternalServerError(w, "")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
