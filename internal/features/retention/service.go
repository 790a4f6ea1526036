package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	common_models "go-bulkops/internal/common/models"
	"go-bulkops/internal/config"
	"go-bulkops/internal/features/audit"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const actor = "retention"

// Purger deletes terminal bulk operations last updated before olderThan.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// RetentionJob periodically purges old bulk operations.
type RetentionJob struct {
	purger   Purger
	audit    audit.AuditService
	schedule string
	maxAge   time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	scheduler *cron.Cron
	running   sync.Mutex
}

func NewRetentionJob(purger Purger, auditService audit.AuditService, cfg *config.Config, log *zap.Logger) *RetentionJob {
	return &RetentionJob{
		purger:   purger,
		audit:    auditService,
		schedule: cfg.RetentionSchedule,
		maxAge:   cfg.RetentionMaxAge,
		log:      log.Named("retention"),
		now:      time.Now,
	}
}

// RunOnce purges operations older than maxAge.
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	if j.maxAge <= 0 {
		return 0, fmt.Errorf("retention max age must be positive, got %s", j.maxAge)
	}
	j.running.Lock()
	defer j.running.Unlock()

	cutoff := j.now().Add(-j.maxAge)
	n, err := j.purger.Purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}

	if j.audit != nil {
		changes := map[string]common_models.Change{
			"purged":     {New: n},
			"older_than": {New: cutoff.UTC().Format(time.RFC3339)},
		}
		if err := j.audit.LogChange(audit.WithActor(ctx, actor), common_models.AuditActionRetention, audit.BulkOperationModule, "", changes); err != nil {
			j.log.Warn("Failed to audit retention run", zap.Error(err))
		}
	}
	return n, nil
}

// Start schedules RunOnce. An empty schedule disables the job.
func (j *RetentionJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.schedule == "" {
		j.log.Info("Retention schedule empty, purge disabled")
		return nil
	}
	if j.scheduler != nil {
		return fmt.Errorf("retention scheduler already started")
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(j.schedule, func() {
		n, err := j.RunOnce(context.Background())
		if err != nil {
			j.log.Error("Retention run failed", zap.Error(err))
			return
		}
		j.log.Info("Retention run finished", zap.Int64("purged", n))
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", j.schedule, err)
	}

	scheduler.Start()
	j.scheduler = scheduler
	j.log.Info("Retention scheduler started", zap.String("schedule", j.schedule), zap.Duration("max_age", j.maxAge))
	return nil
}

// Stop waits for a running purge to finish or ctx to expire.
func (j *RetentionJob) Stop(ctx context.Context) error {
	j.mu.Lock()
	scheduler := j.scheduler
	j.scheduler = nil
	j.mu.Unlock()

	if scheduler == nil {
		return nil
	}
	select {
	case <-scheduler.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun reports when the scheduler fires next, or the zero time when stopped.
func (j *RetentionJob) NextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.scheduler == nil {
		return time.Time{}
	}
	entries := j.scheduler.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
