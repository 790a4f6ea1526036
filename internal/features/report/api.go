package report

import (
	"go-bulkops/internal/common/api"
	"go-bulkops/internal/config"
	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ExportApi struct {
	controller *ExportController
	config     *config.Config
}

func NewExportApi(controller *ExportController, config *config.Config) api.Route {
	return &ExportApi{
		controller: controller,
		config:     config,
	}
}

func (h *ExportApi) Setup(app *fiber.App) {
	group := app.Group("/api/exports", middleware.AuthMiddleware(h.config))

	group.Get("/:id", h.controller.Download)
}
