package system

import (
	"go-bulkops/internal/common/api"
	"go-bulkops/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

type SwaggerApi struct {
	cfg *config.Config
}

func NewSwaggerApi(cfg *config.Config) api.Route {
	return &SwaggerApi{cfg: cfg}
}

// Setup serves the generated API docs outside production.
func (h *SwaggerApi) Setup(app *fiber.App) {
	if h.cfg.Environment == "production" {
		return
	}
	app.Get("/swagger/*", swagger.New(swagger.Config{
		Title:        "Bulk Operations API",
		DeepLinking:  true,
		DocExpansion: "list",
	}))
}
