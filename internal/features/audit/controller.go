package audit

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service AuditService
}

func NewAuditController(service AuditService) *AuditController {
	return &AuditController{Service: service}
}

// ListLogs godoc
// @Summary List audit logs
// @Tags Audit
// @Produce json
// @Param module query string false "Module name"
// @Param record_id query string false "Record or operation id"
// @Param action query string false "Audit action"
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {array} models.AuditLog
// @Router /api/audit-logs [get]
func (ctrl *AuditController) ListLogs(c *fiber.Ctx) error {
	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	filters := make(map[string]interface{})
	if module := c.Query("module"); module != "" {
		filters["module"] = module
	}
	if recordID := c.Query("record_id"); recordID != "" {
		filters["record_id"] = recordID
	}
	if action := c.Query("action"); action != "" {
		filters["action"] = action
	}

	logs, err := ctrl.Service.ListLogs(c.UserContext(), filters, page, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(logs)
}
