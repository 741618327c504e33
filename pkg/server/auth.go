package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/solarplanner/solarplanner/pkg/log"
)

// requireAdmin guards handlers that mutate trained state. Tokens are
// validated against the configured OIDC audience and the email must be in
// the admin list. In local development (no audience configured) requests
// pass through.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.bypassAuth {
			next(w, r)
			return
		}

		ctx := r.Context()
		authz := r.Header.Get("Authorization")
		rawToken, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || rawToken == "" {
			writeJSONError(w, "missing bearer token", "unauthorized", http.StatusUnauthorized)
			return
		}

		token, err := s.oidcVerifier(ctx, rawToken)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "invalid id token", slog.Any("error", err))
			writeJSONError(w, "invalid token", "unauthorized", http.StatusUnauthorized)
			return
		}

		var claims struct {
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
		}
		if err := token.Claims(&claims); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse token claims", slog.Any("error", err))
			writeJSONError(w, "invalid token", "unauthorized", http.StatusUnauthorized)
			return
		}

		if !claims.EmailVerified || !s.isAdmin(claims.Email) {
			log.Ctx(ctx).WarnContext(ctx, "non-admin attempted admin endpoint", slog.String("email", claims.Email))
			writeJSONError(w, "forbidden", "forbidden", http.StatusForbidden)
			return
		}

		next(w, r)
	}
}

// isAdmin returns true if the email is in the adminEmails list.
func (s *Server) isAdmin(email string) bool {
	for _, adminEmail := range s.adminEmails {
		if email == adminEmail {
			return true
		}
	}
	return false
}
