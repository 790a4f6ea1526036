package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSMiddleware allows the configured dashboard origins. Credentials are only
// allowed for an explicit origin list; fiber rejects them with a wildcard.
func CORSMiddleware(origins string) fiber.Handler {
	origins = strings.TrimSpace(origins)
	if origins == "" {
		origins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,X-Requested-With",
		AllowCredentials: origins != "*",
	})
}
