package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

// RequireAuthenticated rejects requests without a bound identity.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CurrentIdentity(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequireAuthority ensures the identity carries at least one of the allowed authorities.
func RequireAuthority(allowed ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowed) == 0 {
			return c.Next()
		}
		for _, authority := range allowed {
			if identity.HasAuthority(authority) {
				return c.Next()
			}
		}
		return apperrors.NewForbidden("insufficient authority")
	}
}
