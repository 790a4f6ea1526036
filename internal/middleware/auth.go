package middleware

import (
	"context"

	"go-bulkops/internal/config"
	"go-bulkops/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// DevActorID is injected as the actor when SKIP_AUTH is enabled.
const DevActorID = "dev-admin-id"

// AuthMiddleware validates JWT tokens issued for this service and injects user claims into context
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	tokens := utils.NewTokens(cfg.JWTSecret, cfg.AppId)
	return func(c *fiber.Ctx) error {
		if cfg.SkipAuth {
			setClaims(c, &utils.UserClaims{
				UserID: DevActorID,
				Roles:  []string{"admin"},
			})
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		// Extract token from "Bearer <token>"
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		claims, err := tokens.Verify(authHeader[7:])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		setClaims(c, claims)
		return c.Next()
	}
}

func setClaims(c *fiber.Ctx, claims *utils.UserClaims) {
	c.Locals(utils.UserClaimsKey, claims)
	c.SetUserContext(context.WithValue(c.UserContext(), utils.UserClaimsKey, claims))
}

// ActorID returns the authenticated user id, or "" when the request is anonymous.
func ActorID(c *fiber.Ctx) string {
	if claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok {
		return claims.UserID
	}
	return ""
}
