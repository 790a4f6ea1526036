package notification

import (
	"go-bulkops/internal/common/api"
	"go-bulkops/internal/config"
	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type NotificationApi struct {
	controller *NotificationController
	config     *config.Config
}

func NewNotificationApi(controller *NotificationController, config *config.Config) api.Route {
	return &NotificationApi{
		controller: controller,
		config:     config,
	}
}

// Setup mounts the inbox routes. Every route is scoped to the caller's actor id.
func (h *NotificationApi) Setup(app *fiber.App) {
	inbox := app.Group("/api/notifications", middleware.AuthMiddleware(h.config))

	inbox.Get("/", h.controller.List)
	inbox.Get("/unread-count", h.controller.GetUnreadCount)
	inbox.Get("/operations/:operationId", h.controller.GetForOperation)
	inbox.Put("/:id/read", h.controller.MarkAsRead)
	inbox.Post("/mark-all-read", h.controller.MarkAllAsRead)
}
