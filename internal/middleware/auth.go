package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/auth"
	"github.com/shubham07069/chatgod/internal/logging"
)

// AuthMiddleware loads the session and rejects anonymous requests. The
// handler finds the caller with auth.FromContext.
func AuthMiddleware(sessions *auth.Sessions, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, err := sessions.Load(r)
			if err != nil {
				logger.Warn("Failed to load session", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !ac.Authenticated() {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), ac)))
		})
	}
}
