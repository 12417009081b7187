package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Role is a user role issued by the auth provider
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var roleLevels = map[Role]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// Level is the position of the role in the hierarchy, 0 for unknown roles
func (r Role) Level() int {
	return roleLevels[Role(strings.ToUpper(string(r)))]
}

// HasRole reports whether role grants at least the privileges of required
func HasRole(role string, required Role) bool {
	level := Role(role).Level()
	return level > 0 && level >= required.Level()
}

// RequireRole rejects requests whose role ranks below minRole
func RequireRole(minRole Role, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetUserRole(r.Context())
			if !ok {
				logger.Warn("Role not found in context", zap.String("path", r.URL.Path))
				RespondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			if !HasRole(role, minRole) {
				logger.Warn("Insufficient role for endpoint",
					zap.String("role", role),
					zap.String("required", string(minRole)),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole(RoleAdmin)
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(RoleAdmin, logger)
}
