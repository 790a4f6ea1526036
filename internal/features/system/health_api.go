package system

import (
	"go-bulkops/internal/common/api"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthApi struct {
	controller *HealthController
}

func NewHealthApi(controller *HealthController) api.Route {
	return &HealthApi{controller: controller}
}

func (h *HealthApi) Setup(app *fiber.App) {
	app.Get("/health", h.controller.Live)
	app.Get("/ready", h.controller.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
