package middleware

import (
	"net/http"

	"github.com/classward/authkit"
)

// RequireRole guards a handler like Guard and additionally rejects
// tokens whose role is not in the allowed set with 403.
func RequireRole(engine *authkit.Engine, roles ...authkit.Role) func(http.Handler) http.Handler {
	allowed := make(map[authkit.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		checked := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[authkit.Role(claims.Role)]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
		return Guard(engine)(checked)
	}
}
