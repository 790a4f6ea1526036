package report

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
)

type ExportController struct {
	writer *ExportWriter
}

func NewExportController(writer *ExportWriter) *ExportController {
	return &ExportController{writer: writer}
}

// Download godoc
// @Summary Download a data export workbook
// @Tags Exports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Bulk operation ID"
// @Success 200 {file} file
// @Router /api/exports/{id} [get]
func (c *ExportController) Download(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	path, err := c.writer.Path(id)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	unlock := c.writer.lock(id)
	data, err := os.ReadFile(path)
	unlock()
	if errors.Is(err, os.ErrNotExist) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "export not found"})
	}
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	ctx.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Set("Content-Disposition", "attachment; filename=\""+id+".xlsx\"")
	return ctx.Send(data)
}
