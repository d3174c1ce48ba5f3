package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RequireSelf ensures the authenticated user is the one named by the
// URL parameter param. It must run after AuthMiddleware.
func RequireSelf(param string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				logger.Warn("User not found in context")
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			if target := chi.URLParam(r, param); target != userID {
				logger.Warn("User attempted to act for another user",
					zap.String("user_id", userID),
					zap.String("target", target),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
