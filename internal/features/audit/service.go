package audit

import (
	"context"
	"time"

	common_models "go-bulkops/internal/common/models"
	"go-bulkops/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditService interface {
	LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error
	ListLogs(ctx context.Context, filters map[string]interface{}, page, limit int64) ([]common_models.AuditLog, error)
}

type AuditServiceImpl struct {
	Repo AuditRepository
	now  func() time.Time
}

func NewAuditService(repo AuditRepository) AuditService {
	return &AuditServiceImpl{
		Repo: repo,
		now:  time.Now,
	}
}

// ActorFromContext resolves who performed an action: JWT claims first, then an explicit actor id.
func ActorFromContext(ctx context.Context) string {
	if claims, ok := ctx.Value(utils.UserClaimsKey).(*utils.UserClaims); ok && claims.UserID != "" {
		return claims.UserID
	}
	if actor, ok := ctx.Value(common_models.ActorIDKey).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

// WithActor attaches an explicit actor id for callers that run outside an HTTP request.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, common_models.ActorIDKey, actor)
}

func (s *AuditServiceImpl) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	log := common_models.AuditLog{
		ID:        primitive.NewObjectID(),
		Action:    action,
		Module:    module,
		RecordID:  recordID,
		ActorID:   ActorFromContext(ctx),
		Changes:   changes,
		Timestamp: s.now(),
	}

	return s.Repo.Create(ctx, log)
}

func (s *AuditServiceImpl) ListLogs(ctx context.Context, filters map[string]interface{}, page, limit int64) ([]common_models.AuditLog, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit
	return s.Repo.List(ctx, filters, limit, offset)
}
