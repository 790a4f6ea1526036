package record

import (
	"context"
	"fmt"

	"go-bulkops/internal/config"
	"go-bulkops/internal/features/bulk_operation"
)

// SelectionResolver expands bulk operation selection criteria against the record store.
//
// Criteria take one of two forms:
//
//	{"ids": ["a", "b"]}                       explicit target ids
//	{"filter": {"status": "open"}, "limit": 500}  records of the target entity matching filter
type SelectionResolver struct {
	Repo  RecordRepository
	Limit int
}

func NewSelectionResolver(repo RecordRepository, cfg *config.Config) bulk_operation.SelectionResolver {
	return &SelectionResolver{Repo: repo, Limit: cfg.SelectionLimit}
}

func (r *SelectionResolver) Resolve(ctx context.Context, targetEntityType string, criteria map[string]interface{}) ([]string, error) {
	if raw, ok := criteria["ids"]; ok {
		return r.explicitIDs(raw)
	}
	if raw, ok := criteria["filter"]; ok {
		filter, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: filter must be an object", bulk_operation.ErrInvalidSelection)
		}
		return r.filterIDs(ctx, targetEntityType, filter, ParseInt64(criteria["limit"], 0))
	}
	return nil, fmt.Errorf("%w: criteria need ids or filter", bulk_operation.ErrInvalidSelection)
}

func (r *SelectionResolver) explicitIDs(raw interface{}) ([]string, error) {
	var values []interface{}
	switch v := raw.(type) {
	case []interface{}:
		values = v
	case []string:
		for _, s := range v {
			values = append(values, s)
		}
	default:
		return nil, fmt.Errorf("%w: ids must be a list", bulk_operation.ErrInvalidSelection)
	}

	seen := make(map[string]struct{}, len(values))
	ids := make([]string, 0, len(values))
	for _, val := range values {
		id, err := NormalizeID(val)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", bulk_operation.ErrInvalidSelection, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if r.Limit > 0 && len(ids) > r.Limit {
		return nil, fmt.Errorf("%w: %d targets exceeds limit %d", bulk_operation.ErrInvalidSelection, len(ids), r.Limit)
	}
	if len(ids) == 0 {
		return nil, bulk_operation.ErrEmptySelection
	}
	return ids, nil
}

func (r *SelectionResolver) filterIDs(ctx context.Context, entity string, filter map[string]interface{}, limit int64) ([]string, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", bulk_operation.ErrInvalidSelection)
	}
	if r.Limit > 0 {
		if limit > int64(r.Limit) {
			return nil, fmt.Errorf("%w: limit %d exceeds %d", bulk_operation.ErrInvalidSelection, limit, r.Limit)
		}
		if limit == 0 {
			// One past the cap so oversize selections are rejected instead of truncated.
			limit = int64(r.Limit) + 1
		}
	}

	records, err := r.Repo.List(ctx, entity, filter, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("resolve selection: %w", err)
	}
	if r.Limit > 0 && len(records) > r.Limit {
		return nil, fmt.Errorf("%w: selection exceeds limit %d", bulk_operation.ErrInvalidSelection, r.Limit)
	}
	if len(records) == 0 {
		return nil, bulk_operation.ErrEmptySelection
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}
