package record

import (
	"go-bulkops/internal/common/api"
	"go-bulkops/internal/config"
	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RecordApi struct {
	controller *RecordController
	config     *config.Config
}

func NewRecordApi(controller *RecordController, config *config.Config) api.Route {
	return &RecordApi{
		controller: controller,
		config:     config,
	}
}

func (h *RecordApi) Setup(app *fiber.App) {
	records := app.Group("/api/records", middleware.AuthMiddleware(h.config))

	records.Post("/:entity", h.controller.CreateRecord)
	records.Get("/:entity", h.controller.ListRecords)
	records.Get("/:entity/:id", h.controller.GetRecord)
	records.Patch("/:entity/:id", h.controller.UpdateRecord)
	records.Delete("/:entity/:id", h.controller.DeleteRecord)
}
