package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// RequireAdmin ensures the caller carries the admin claim.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Admin {
			return apperrors.NewForbidden("admin privileges required")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures some principal is present.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
