package bulk_operation

import (
	"errors"
	"strconv"

	"go-bulkops/internal/middleware"
	"go-bulkops/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type BulkOperationController struct {
	BulkService BulkOperationService
	log         *zap.Logger
}

func NewBulkOperationController(bulkService BulkOperationService, log *zap.Logger) *BulkOperationController {
	return &BulkOperationController{
		BulkService: bulkService,
		log:         log.Named("bulk_controller"),
	}
}

// writeError maps engine errors onto HTTP statuses.
func (c *BulkOperationController) writeError(ctx *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrInvalidOperationType),
		errors.Is(err, ErrInvalidSelection),
		errors.Is(err, ErrEmptySelection),
		errors.Is(err, ErrInvalidConfiguration):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrStatusConflict),
		errors.Is(err, ErrApprovalRequired),
		errors.Is(err, ErrNotReversible),
		errors.Is(err, ErrAlreadyRolledBack),
		errors.Is(err, ErrRollbackInProgress):
		status = fiber.StatusConflict
	}

	if status == fiber.StatusInternalServerError {
		c.log.Error("Bulk operation request failed", zap.String("path", ctx.Path()), zap.Error(err))
		return ctx.Status(status).JSON(fiber.Map{"error": "internal error", "code": "Internal"})
	}
	return ctx.Status(status).JSON(fiber.Map{"error": err.Error(), "code": ErrorCode(err)})
}

func pagination(ctx *fiber.Ctx, defaultLimit int64) (page, limit int64) {
	page, _ = strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ = strconv.ParseInt(ctx.Query("limit", strconv.FormatInt(defaultLimit, 10)), 10, 64)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = defaultLimit
	}
	return page, limit
}

// ListTypes godoc
// @Summary List operation types
// @Description Registered operation types and their defaults
// @Tags BulkOperations
// @Produce json
// @Success 200 {array} OperationDefinition
// @Router /api/bulk-operations/types [get]
func (c *BulkOperationController) ListTypes(ctx *fiber.Ctx) error {
	return ctx.JSON(c.BulkService.Types())
}

// CreateBulkOperation godoc
// @Summary Create a bulk operation
// @Description Materializes the selection into items. Types without approval are queued immediately.
// @Tags BulkOperations
// @Accept json
// @Produce json
// @Param request body CreateRequest true "Operation request"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/bulk-operations [post]
func (c *BulkOperationController) CreateBulkOperation(ctx *fiber.Ctx) error {
	var req CreateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request", "code": "InvalidRequest"})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "code": "InvalidRequest"})
	}
	req.Initiator = middleware.ActorID(ctx)

	op, err := c.BulkService.Create(ctx.UserContext(), req)
	if err != nil {
		return c.writeError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"operation_id":      op.ID,
		"total_items":       op.TotalItems,
		"status":            op.Status,
		"approval_required": op.ApprovalRequired,
	})
}

// ListBulkOperations godoc
// @Summary List bulk operations
// @Tags BulkOperations
// @Produce json
// @Param status query string false "Operation status"
// @Param operation_type query string false "Operation type"
// @Param initiator query string false "Initiator id"
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Router /api/bulk-operations [get]
func (c *BulkOperationController) ListBulkOperations(ctx *fiber.Ctx) error {
	page, limit := pagination(ctx, 20)
	f := ListFilter{
		Status:        OperationStatus(ctx.Query("status")),
		OperationType: ctx.Query("operation_type"),
		Initiator:     ctx.Query("initiator"),
		Limit:         limit,
		Offset:        (page - 1) * limit,
	}
	if f.Status != "" && !f.Status.Valid() {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status", "code": "InvalidRequest"})
	}

	ops, total, err := c.BulkService.List(ctx.UserContext(), f)
	if err != nil {
		return c.writeError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"data":  ops,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetBulkOperation godoc
// @Summary Get a bulk operation
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} BulkOperation
// @Failure 404 {object} map[string]string
// @Router /api/bulk-operations/{id} [get]
func (c *BulkOperationController) GetBulkOperation(ctx *fiber.Ctx) error {
	op, err := c.BulkService.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return c.writeError(ctx, err)
	}
	return ctx.JSON(op)
}

// ApproveBulkOperation godoc
// @Summary Approve and enqueue a bulk operation
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} BulkOperation
// @Failure 409 {object} map[string]string
// @Router /api/bulk-operations/{id}/approve [post]
func (c *BulkOperationController) ApproveBulkOperation(ctx *fiber.Ctx) error {
	op, err := c.BulkService.Approve(ctx.UserContext(), ctx.Params("id"), middleware.ActorID(ctx))
	if err != nil {
		return c.writeError(ctx, err)
	}
	return ctx.JSON(op)
}

// EnqueueBulkOperation godoc
// @Summary Enqueue a pending bulk operation
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} BulkOperation
// @Failure 409 {object} map[string]string
// @Router /api/bulk-operations/{id}/enqueue [post]
func (c *BulkOperationController) EnqueueBulkOperation(ctx *fiber.Ctx) error {
	op, err := c.BulkService.Enqueue(ctx.UserContext(), ctx.Params("id"), middleware.ActorID(ctx))
	if err != nil {
		return c.writeError(ctx, err)
	}
	return ctx.JSON(op)
}

// CancelBulkOperation godoc
// @Summary Cancel a bulk operation
// @Tags BulkOperations
// @Accept json
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} BulkOperation
// @Failure 409 {object} map[string]string
// @Router /api/bulk-operations/{id}/cancel [post]
func (c *BulkOperationController) CancelBulkOperation(ctx *fiber.Ctx) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&body); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request", "code": "InvalidRequest"})
		}
	}

	op, err := c.BulkService.Cancel(ctx.UserContext(), ctx.Params("id"), middleware.ActorID(ctx), body.Reason)
	if err != nil {
		return c.writeError(ctx, err)
	}
	return ctx.JSON(op)
}

// RollbackBulkOperation godoc
// @Summary Roll back a completed reversible operation
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]string
// @Router /api/bulk-operations/{id}/rollback [post]
func (c *BulkOperationController) RollbackBulkOperation(ctx *fiber.Ctx) error {
	op, err := c.BulkService.Rollback(ctx.UserContext(), ctx.Params("id"), middleware.ActorID(ctx))
	if err != nil {
		return c.writeError(ctx, err)
	}
	return ctx.JSON(fiber.Map{
		"rollback_operation_id": op.ID,
		"status":                op.Status,
		"total_items":           op.TotalItems,
	})
}

// ListItems godoc
// @Summary List items of a bulk operation
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Param status query string false "Item status"
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Router /api/bulk-operations/{id}/items [get]
func (c *BulkOperationController) ListItems(ctx *fiber.Ctx) error {
	page, limit := pagination(ctx, 50)
	items, total, err := c.BulkService.ListItems(ctx.UserContext(), ctx.Params("id"), ItemFilter{
		Status: ItemStatus(ctx.Query("status")),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return c.writeError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"data":  items,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// DeleteBulkOperation godoc
// @Summary Delete a terminal bulk operation and its items
// @Tags BulkOperations
// @Param id path string true "Operation ID"
// @Success 204
// @Failure 409 {object} map[string]string
// @Router /api/bulk-operations/{id} [delete]
func (c *BulkOperationController) DeleteBulkOperation(ctx *fiber.Ctx) error {
	if err := c.BulkService.Delete(ctx.UserContext(), ctx.Params("id")); err != nil {
		return c.writeError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
