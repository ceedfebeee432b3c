package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// RequireRole ensures the principal holds one of the allowed roles. ADMIN is
// always allowed.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed)+1)
	allowedSet[domain.RoleAdmin] = struct{}{}
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// ValidRole reports whether r is a known role.
func ValidRole(r domain.Role) bool {
	switch r {
	case domain.RoleAdmin, domain.RoleScheduler, domain.RoleIntegration:
		return true
	}
	return false
}
