package audit

import (
	"go-bulkops/internal/common/api"
	"go-bulkops/internal/config"
	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	controller *AuditController
	config     *config.Config
}

func NewAuditApi(controller *AuditController, config *config.Config) api.Route {
	return &AuditApi{
		controller: controller,
		config:     config,
	}
}

func (h *AuditApi) Setup(app *fiber.App) {
	audit := app.Group("/api/audit-logs", middleware.AuthMiddleware(h.config))

	audit.Get("/", h.controller.ListLogs)
}
