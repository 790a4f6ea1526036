package system

import (
	"go-bulkops/internal/common/api"
	"go-bulkops/internal/config"
	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type DebugApi struct {
	controller *DebugController
	config     *config.Config
}

func NewDebugApi(controller *DebugController, cfg *config.Config) api.Route {
	return &DebugApi{
		controller: controller,
		config:     cfg,
	}
}

// Setup registers debug routes
func (h *DebugApi) Setup(app *fiber.App) {
	debug := app.Group("/api/debug", middleware.AuthMiddleware(h.config))
	debug.Get("/me", h.controller.GetCurrentUser)
	debug.Get("/engine", h.controller.GetEngineSettings)
}
