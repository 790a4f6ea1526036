package retention

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

type RetentionController struct {
	job *RetentionJob
}

func NewRetentionController(job *RetentionJob) *RetentionController {
	return &RetentionController{job: job}
}

// Run godoc
// @Summary Purge old bulk operations now
// @Tags Retention
// @Produce json
// @Router /api/retention/run [post]
func (c *RetentionController) Run(ctx *fiber.Ctx) error {
	n, err := c.job.RunOnce(ctx.UserContext())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"purged": n})
}

// Status godoc
// @Summary Retention schedule
// @Tags Retention
// @Produce json
// @Router /api/retention [get]
func (c *RetentionController) Status(ctx *fiber.Ctx) error {
	resp := fiber.Map{
		"schedule": c.job.schedule,
		"max_age":  c.job.maxAge.String(),
	}
	if next := c.job.NextRun(); !next.IsZero() {
		resp["next_run"] = next.UTC().Format(time.RFC3339)
	}
	return ctx.JSON(resp)
}
