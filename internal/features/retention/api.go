package retention

import (
	"go-bulkops/internal/common/api"
	"go-bulkops/internal/config"
	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RetentionApi struct {
	controller *RetentionController
	config     *config.Config
}

func NewRetentionApi(controller *RetentionController, config *config.Config) api.Route {
	return &RetentionApi{
		controller: controller,
		config:     config,
	}
}

func (h *RetentionApi) Setup(app *fiber.App) {
	group := app.Group("/api/retention", middleware.AuthMiddleware(h.config))

	group.Get("/", h.controller.Status)
	group.Post("/run", h.controller.Run)
}
