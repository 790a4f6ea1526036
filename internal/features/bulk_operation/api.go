package bulk_operation

import (
	"go-bulkops/internal/common/api"
	"go-bulkops/internal/config"
	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type BulkOperationApi struct {
	BulkController *BulkOperationController
	Stream         *ProgressStream
	Config         *config.Config
}

func NewBulkOperationApi(bulkController *BulkOperationController, stream *ProgressStream, config *config.Config) api.Route {
	return &BulkOperationApi{
		BulkController: bulkController,
		Stream:         stream,
		Config:         config,
	}
}

func (a *BulkOperationApi) Setup(app *fiber.App) {
	group := app.Group("/api/bulk-operations", middleware.AuthMiddleware(a.Config))

	group.Get("/types", a.BulkController.ListTypes)
	group.Post("/", a.BulkController.CreateBulkOperation)
	group.Get("/", a.BulkController.ListBulkOperations)
	group.Get("/:id", a.BulkController.GetBulkOperation)
	group.Delete("/:id", a.BulkController.DeleteBulkOperation)
	group.Post("/:id/approve", a.BulkController.ApproveBulkOperation)
	group.Post("/:id/enqueue", a.BulkController.EnqueueBulkOperation)
	group.Post("/:id/cancel", a.BulkController.CancelBulkOperation)
	group.Post("/:id/rollback", a.BulkController.RollbackBulkOperation)
	group.Get("/:id/items", a.BulkController.ListItems)
	group.Get("/:id/items/export", a.BulkController.ExportItems)
	group.Get("/:id/ws", a.Stream.Upgrade, a.Stream.Handler())
}
