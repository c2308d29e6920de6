package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/kidquest/internal/auth"
)

// ParentTokenHeader carries the token returned by the parent unlock endpoint.
const ParentTokenHeader = "X-Parent-Token"

// RequireAccount validates the bearer token and populates AuthContext.
// Browsers cannot set headers on WebSocket upgrades, so a "token" query
// parameter is accepted as well.
func RequireAccount(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			ac, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireParent checks the parent token against the authenticated family.
// It must run after RequireAccount.
func RequireParent(tokens *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			c, err := tokens.Validate(r.Header.Get(ParentTokenHeader))
			if err != nil || c.Role != auth.RoleParent || c.AccountID != ac.AccountID {
				writeError(w, http.StatusForbidden, "parent access required")
				return
			}

			ac.Parent = true
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
