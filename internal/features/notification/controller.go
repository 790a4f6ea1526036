package notification

import (
	"errors"
	"strconv"

	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	service NotificationService
}

func NewNotificationController(service NotificationService) *NotificationController {
	return &NotificationController{
		service: service,
	}
}

func unauthorized(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
}

// List godoc
// @Summary List my notifications
// @Tags Notifications
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Router /api/notifications [get]
func (c *NotificationController) List(ctx *fiber.Ctx) error {
	userID := middleware.ActorID(ctx)
	if userID == "" {
		return unauthorized(ctx)
	}

	page, _ := strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.Query("limit", "10"), 10, 64)

	notifications, total, err := c.service.GetUserNotifications(ctx.UserContext(), userID, page, limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(fiber.Map{
		"data":  notifications,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetForOperation godoc
// @Summary Get the notification a bulk operation sent me
// @Tags Notifications
// @Produce json
// @Param operationId path string true "Bulk operation ID"
// @Router /api/notifications/operations/{operationId} [get]
func (c *NotificationController) GetForOperation(ctx *fiber.Ctx) error {
	userID := middleware.ActorID(ctx)
	if userID == "" {
		return unauthorized(ctx)
	}

	n, err := c.service.GetForOperation(ctx.UserContext(), ctx.Params("operationId"), userID)
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(n)
}

// GetUnreadCount godoc
// @Summary Count my unread notifications
// @Tags Notifications
// @Produce json
// @Router /api/notifications/unread-count [get]
func (c *NotificationController) GetUnreadCount(ctx *fiber.Ctx) error {
	userID := middleware.ActorID(ctx)
	if userID == "" {
		return unauthorized(ctx)
	}

	count, err := c.service.GetUnreadCount(ctx.UserContext(), userID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(fiber.Map{"count": count})
}

// MarkAsRead godoc
// @Summary Mark a notification read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Router /api/notifications/{id}/read [put]
func (c *NotificationController) MarkAsRead(ctx *fiber.Ctx) error {
	userID := middleware.ActorID(ctx)
	if userID == "" {
		return unauthorized(ctx)
	}

	if err := c.service.MarkAsRead(ctx.UserContext(), ctx.Params("id"), userID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(fiber.Map{"status": "success"})
}

// MarkAllAsRead godoc
// @Summary Mark all my notifications read
// @Tags Notifications
// @Router /api/notifications/mark-all-read [post]
func (c *NotificationController) MarkAllAsRead(ctx *fiber.Ctx) error {
	userID := middleware.ActorID(ctx)
	if userID == "" {
		return unauthorized(ctx)
	}

	if err := c.service.MarkAllAsRead(ctx.UserContext(), userID); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(fiber.Map{"status": "success"})
}
