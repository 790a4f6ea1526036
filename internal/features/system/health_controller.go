package system

import (
	"context"
	"sort"
	"time"

	"go-bulkops/internal/config"
	"go-bulkops/internal/database"

	"github.com/gofiber/fiber/v2"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type HealthController struct {
	cfg    *config.Config
	checks map[string]Check
}

func NewHealthController(cfg *config.Config, mongodb *database.MongodbDB, pg *database.PostgresDB) *HealthController {
	checks := make(map[string]Check)
	if mongodb.Enabled() {
		checks["mongo"] = func(ctx context.Context) error {
			return mongodb.DB.Client().Ping(ctx, nil)
		}
	}
	if pg.Enabled() {
		checks["postgres"] = func(ctx context.Context) error {
			return pg.DB.PingContext(ctx)
		}
	}
	return &HealthController{cfg: cfg, checks: checks}
}

// Live godoc
// @Summary Liveness probe
// @Tags System
// @Produce json
// @Router /health [get]
func (c *HealthController) Live(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"status": "ok",
		"app":    c.cfg.AppId,
		"store":  c.cfg.StoreDriver,
	})
}

// Ready godoc
// @Summary Readiness probe
// @Description Pings every configured backing store
// @Tags System
// @Produce json
// @Router /ready [get]
func (c *HealthController) Ready(ctx *fiber.Ctx) error {
	checkCtx, cancel := context.WithTimeout(ctx.UserContext(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := fiber.StatusOK
	results := fiber.Map{}
	for _, name := range names {
		if err := c.checks[name](checkCtx); err != nil {
			results[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != fiber.StatusOK {
		state = "unavailable"
	}
	return ctx.Status(status).JSON(fiber.Map{"status": state, "checks": results})
}
