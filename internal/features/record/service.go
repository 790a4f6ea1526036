package record

import (
	"context"
	"fmt"
	"reflect"

	common_models "go-bulkops/internal/common/models"
	"go-bulkops/internal/features/audit"
)

type RecordService interface {
	CreateRecord(ctx context.Context, entity string, data map[string]any, actor string) (*common_models.EntityRecord, error)
	GetRecord(ctx context.Context, entity, id string) (*common_models.EntityRecord, error)
	ListRecords(ctx context.Context, entity string, filter map[string]any, page, limit int64) ([]common_models.EntityRecord, int64, error)
	UpdateRecord(ctx context.Context, entity, id string, data map[string]any, actor string) (*common_models.EntityRecord, error)
	DeleteRecord(ctx context.Context, entity, id string, actor string) error
}

type RecordServiceImpl struct {
	Repo         RecordRepository
	AuditService audit.AuditService
}

func NewRecordService(repo RecordRepository, auditService audit.AuditService) RecordService {
	return &RecordServiceImpl{
		Repo:         repo,
		AuditService: auditService,
	}
}

func (s *RecordServiceImpl) logChange(ctx context.Context, action common_models.AuditAction, entity, id, actor string, changes map[string]common_models.Change) {
	if s.AuditService == nil {
		return
	}
	// Audit failures never fail the record write.
	_ = s.AuditService.LogChange(audit.WithActor(ctx, actor), action, entity, id, changes)
}

func (s *RecordServiceImpl) CreateRecord(ctx context.Context, entity string, data map[string]any, actor string) (*common_models.EntityRecord, error) {
	if entity == "" {
		return nil, fmt.Errorf("entity is required")
	}
	rec, err := s.Repo.Create(ctx, entity, data, actor)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]common_models.Change, len(data))
	for k, v := range data {
		changes[k] = common_models.Change{New: v}
	}
	s.logChange(ctx, common_models.AuditActionCreate, entity, rec.ID, actor, changes)
	return rec, nil
}

func (s *RecordServiceImpl) GetRecord(ctx context.Context, entity, id string) (*common_models.EntityRecord, error) {
	return s.Repo.Get(ctx, entity, id)
}

func (s *RecordServiceImpl) ListRecords(ctx context.Context, entity string, filter map[string]any, page, limit int64) ([]common_models.EntityRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	records, err := s.Repo.List(ctx, entity, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.Count(ctx, entity, filter)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *RecordServiceImpl) UpdateRecord(ctx context.Context, entity, id string, data map[string]any, actor string) (*common_models.EntityRecord, error) {
	existing, err := s.Repo.Get(ctx, entity, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.Repo.Update(ctx, entity, id, data, actor)
	if err != nil {
		return nil, err
	}

	changes := diffData(existing.Data, data)
	if len(changes) > 0 {
		s.logChange(ctx, common_models.AuditActionUpdate, entity, id, actor, changes)
	}
	return updated, nil
}

func (s *RecordServiceImpl) DeleteRecord(ctx context.Context, entity, id string, actor string) error {
	if err := s.Repo.Delete(ctx, entity, id, actor); err != nil {
		return err
	}
	s.logChange(ctx, common_models.AuditActionDelete, entity, id, actor, map[string]common_models.Change{
		"deleted": {Old: false, New: true},
	})
	return nil
}

// diffData lists the fields a patch actually changes. A nil value in the patch removes the field.
func diffData(old, patch map[string]any) map[string]common_models.Change {
	changes := make(map[string]common_models.Change)
	for k, newVal := range patch {
		oldVal, existed := old[k]
		if newVal == nil && !existed {
			continue
		}
		if existed && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		changes[k] = common_models.Change{Old: oldVal, New: newVal}
	}
	return changes
}
