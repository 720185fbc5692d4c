package admin

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	id "transplant/pkg/domain"
	request "transplant/pkg/platform/middleware/request"
	"transplant/pkg/requestcontext"
)

// adminActor is attributed in audit entries for operator calls made with the admin token.
var adminActor = id.Actor{Name: "operator", Role: id.RoleAdmin}

// RequireAdminToken checks X-Admin-Token against a bcrypt hash. Only the
// hash is kept in configuration.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if token == "" || tokenHash == "" ||
				bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), adminActor)))
		})
	}
}
