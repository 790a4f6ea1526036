package record

import (
	"encoding/json"
	"errors"
	"strconv"

	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RecordController struct {
	Service RecordService
}

func NewRecordController(service RecordService) *RecordController {
	return &RecordController{Service: service}
}

func (ctrl *RecordController) writeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

// CreateRecord godoc
// @Summary Create a record
// @Tags Records
// @Accept json
// @Produce json
// @Param entity path string true "Entity name"
// @Param data body map[string]interface{} true "Record data"
// @Success 201 {object} models.EntityRecord
// @Router /api/records/{entity} [post]
func (ctrl *RecordController) CreateRecord(c *fiber.Ctx) error {
	var data map[string]any
	if err := c.BodyParser(&data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	rec, err := ctrl.Service.CreateRecord(c.UserContext(), c.Params("entity"), data, middleware.ActorID(c))
	if err != nil {
		return ctrl.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// ListRecords godoc
// @Summary List records
// @Tags Records
// @Produce json
// @Param entity path string true "Entity name"
// @Param filter query string false "JSON equality filter on data fields"
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Router /api/records/{entity} [get]
func (ctrl *RecordController) ListRecords(c *fiber.Ctx) error {
	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	filter := map[string]any{}
	if raw := c.Query("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid filter"})
		}
	}

	records, total, err := ctrl.Service.ListRecords(c.UserContext(), c.Params("entity"), filter, page, limit)
	if err != nil {
		return ctrl.writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"data":  records,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetRecord godoc
// @Summary Get a record
// @Tags Records
// @Produce json
// @Param entity path string true "Entity name"
// @Param id path string true "Record ID"
// @Success 200 {object} models.EntityRecord
// @Router /api/records/{entity}/{id} [get]
func (ctrl *RecordController) GetRecord(c *fiber.Ctx) error {
	rec, err := ctrl.Service.GetRecord(c.UserContext(), c.Params("entity"), c.Params("id"))
	if err != nil {
		return ctrl.writeError(c, err)
	}
	return c.JSON(rec)
}

// UpdateRecord godoc
// @Summary Patch a record
// @Tags Records
// @Accept json
// @Produce json
// @Param entity path string true "Entity name"
// @Param id path string true "Record ID"
// @Param data body map[string]interface{} true "Fields to change; null removes a field"
// @Success 200 {object} models.EntityRecord
// @Router /api/records/{entity}/{id} [patch]
func (ctrl *RecordController) UpdateRecord(c *fiber.Ctx) error {
	var data map[string]any
	if err := c.BodyParser(&data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	rec, err := ctrl.Service.UpdateRecord(c.UserContext(), c.Params("entity"), c.Params("id"), data, middleware.ActorID(c))
	if err != nil {
		return ctrl.writeError(c, err)
	}
	return c.JSON(rec)
}

// DeleteRecord godoc
// @Summary Soft delete a record
// @Tags Records
// @Param entity path string true "Entity name"
// @Param id path string true "Record ID"
// @Success 204
// @Router /api/records/{entity}/{id} [delete]
func (ctrl *RecordController) DeleteRecord(c *fiber.Ctx) error {
	if err := ctrl.Service.DeleteRecord(c.UserContext(), c.Params("entity"), c.Params("id"), middleware.ActorID(c)); err != nil {
		return ctrl.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
