package system

import (
	"go-bulkops/internal/config"
	"go-bulkops/internal/middleware"
	"go-bulkops/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type DebugController struct {
	cfg *config.Config
}

func NewDebugController(cfg *config.Config) *DebugController {
	return &DebugController{cfg: cfg}
}

// GetCurrentUser godoc
// @Summary      Get current user info
// @Description  Get the current user's info from JWT
// @Tags         debug
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/debug/me [get]
func (c *DebugController) GetCurrentUser(ctx *fiber.Ctx) error {
	var roles []string
	if claims, ok := ctx.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok {
		roles = claims.Roles
	}

	return ctx.JSON(fiber.Map{
		"user_id": middleware.ActorID(ctx),
		"roles":   roles,
	})
}

// GetEngineSettings godoc
// @Summary      Show engine settings
// @Description  Worker pool, retry and retention settings in effect. Secrets and DSNs are never returned.
// @Tags         debug
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/debug/engine [get]
func (c *DebugController) GetEngineSettings(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"environment":        c.cfg.Environment,
		"store_driver":       c.cfg.StoreDriver,
		"workers":            c.cfg.WorkerCount,
		"poll_interval":      c.cfg.WorkerPollInterval.String(),
		"item_timeout":       c.cfg.ItemTimeout.String(),
		"item_stop_grace":    c.cfg.ItemStopGrace.String(),
		"retry_base_delay":   c.cfg.RetryBaseDelay.String(),
		"retry_max_delay":    c.cfg.RetryMaxDelay.String(),
		"selection_limit":    c.cfg.SelectionLimit,
		"retention_schedule": c.cfg.RetentionSchedule,
		"retention_max_age":  c.cfg.RetentionMaxAge.String(),
		"redis_progress":     c.cfg.RedisAddr != "",
		"export_dir":         c.cfg.ExportDir,
	})
}
