package bulk_operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
	ItemTimeout  time.Duration
	// StopGrace is how long a timed-out executor may take to return before the item is
	// failed for good. The item is only retried once its executor has returned.
	StopGrace time.Duration
	Retry     RetryPolicy
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 30 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = c.ItemTimeout
	}
	return c
}

// Pool is a bounded set of workers shared by all runnable operations.
type Pool struct {
	cfg      PoolConfig
	store    Store
	registry *Registry
	manager  *Manager
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time

	wake   chan struct{}
	cursor atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPool(cfg PoolConfig, store Store, registry *Registry, manager *Manager, log *zap.Logger) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:      cfg,
		store:    store,
		registry: registry,
		manager:  manager,
		log:      log.Named("bulk_worker"),
		tracer:   otel.Tracer("go-bulkops/bulk_operation"),
		now:      time.Now,
		wake:     make(chan struct{}, cfg.Workers),
	}
}

// Notify wakes idle workers, e.g. right after an operation was enqueued.
func (p *Pool) Notify() {
	for i := 0; i < p.cfg.Workers; i++ {
		select {
		case p.wake <- struct{}{}:
		default:
			return
		}
	}
}

// Start launches the workers in the background until Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("worker pool already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if err := p.Run(runCtx); err != nil {
			p.log.Error("Worker pool stopped with error", zap.Error(err))
		}
	}()
	p.log.Info("Starting bulk operation worker pool", zap.Int("workers", p.cfg.Workers))
	return nil
}

// Stop cancels the workers and waits for in-flight items, bounded by ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		p.log.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			p.loop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	log := p.log.With(zap.Int("worker_id", workerID))
	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			log.Debug("Worker loop stopped")
			return
		}

		worked, err := p.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn("Process next item failed", zap.Error(err))
		}
		if worked {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.cfg.PollInterval)

		select {
		case <-ctx.Done():
			log.Debug("Worker loop stopped")
			return
		case <-p.wake:
		case <-timer.C:
		}
	}
}

// ProcessNext runs one claim/execute/record cycle. It reports whether an item was processed.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	ops, err := p.store.ListRunnableOperations(ctx, p.now(), 0)
	if err != nil {
		return false, fmt.Errorf("list runnable operations: %w", err)
	}
	if len(ops) == 0 {
		return false, nil
	}

	start := int(p.cursor.Add(1) % uint64(len(ops)))
	for i := 0; i < len(ops); i++ {
		op := ops[(start+i)%len(ops)]

		if op.Status == StatusQueued {
			if _, err := p.manager.MarkProcessing(ctx, op.ID); err != nil && !errors.Is(err, ErrStatusConflict) {
				return false, err
			}
		}

		item, err := p.store.ClaimItem(ctx, op.ID, p.now())
		if err != nil {
			return false, fmt.Errorf("claim item of %s: %w", op.ID, err)
		}
		if item == nil {
			// Nothing due. If nothing is left at all the operation only needs finalizing.
			if active, err := p.store.CountActiveItems(ctx, op.ID); err == nil && active == 0 {
				if _, err := p.manager.Finalize(ctx, op.ID); err != nil {
					p.log.Warn("Finalize failed", zap.String("operation_id", op.ID), zap.Error(err))
				}
			}
			continue
		}

		current, err := p.store.GetOperation(ctx, op.ID)
		if err != nil {
			p.release(item)
			return false, err
		}
		if current.Status != StatusProcessing {
			// cancelled between listing and claiming
			p.release(item)
			continue
		}

		p.process(ctx, current, item)
		return true, nil
	}
	return false, nil
}

func (p *Pool) release(item *BulkOperationItem) {
	if err := p.store.ReleaseItem(context.Background(), item.ID); err != nil {
		p.log.Warn("Release item failed", zap.String("item_id", item.ID), zap.Error(err))
	}
}

func (p *Pool) process(ctx context.Context, op *BulkOperation, item *BulkOperationItem) {
	ActiveWorkers.Inc()
	defer ActiveWorkers.Dec()

	log := p.log.With(
		zap.String("operation_id", op.ID),
		zap.String("operation_type", op.OperationType),
		zap.String("item_id", item.ID),
		zap.String("target_id", item.TargetID),
	)

	started := p.now()
	var outcome Outcome
	exec, ok := p.registry.Get(op.OperationType)
	if !ok {
		outcome = Failure(fmt.Errorf("no executor registered for %s", op.OperationType), false)
	} else {
		outcome = p.execute(ctx, exec, op, item)
	}
	elapsed := p.now().Sub(started)
	ItemDuration.WithLabelValues(op.OperationType).Observe(elapsed.Seconds())

	if ctx.Err() != nil {
		// shutting down, the item is picked up again on the next start
		p.release(item)
		return
	}

	// Recording outlives request cancellation so counters stay consistent.
	recCtx := context.WithoutCancel(ctx)
	if err := p.record(recCtx, op, item, outcome, elapsed, log); err != nil {
		log.Error("Failed to record item outcome", zap.Error(err))
	}
}

func (p *Pool) execute(ctx context.Context, exec ItemExecutor, op *BulkOperation, item *BulkOperationItem) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ItemTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "bulk_operation.execute_item", trace.WithAttributes(
		attribute.String("bulk.operation_id", op.ID),
		attribute.String("bulk.operation_type", op.OperationType),
		attribute.String("bulk.target_id", item.TargetID),
		attribute.Int("bulk.attempt", item.RetryCount+1),
	))
	defer span.End()

	req := ExecutionRequest{
		OperationID:   op.ID,
		OperationType: op.OperationType,
		TargetID:      item.TargetID,
		TargetType:    item.TargetType,
		Scope:         op.Scope,
		Configuration: op.Configuration,
		Attempt:       item.RetryCount + 1,
	}

	resCh := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- Failure(fmt.Errorf("executor panic: %v", r), false)
			}
		}()
		resCh <- exec.Execute(ctx, req)
	}()

	var out Outcome
	select {
	case out = <-resCh:
	case <-ctx.Done():
		out = p.awaitStopped(resCh, ctx.Err())
	}

	span.SetAttributes(attribute.String("bulk.outcome", string(out.Kind)))
	if out.Kind == OutcomeFailure {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

func (p *Pool) record(ctx context.Context, op *BulkOperation, item *BulkOperationItem, out Outcome, elapsed time.Duration, log *zap.Logger) error {
	now := p.now()
	completion := ItemCompletion{
		CompletedAt:      now,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}

	switch out.Kind {
	case OutcomeSuccess:
		completion.Status = ItemSuccess
		completion.Result = out.Result
	case OutcomeSkip:
		completion.Status = ItemSkipped
		completion.Result = map[string]interface{}{"skip_reason": out.Reason}
	default:
		if p.cfg.Retry.ShouldRetry(item, op, out) {
			delay := p.cfg.Retry.Backoff(item.RetryCount)
			if err := p.store.RequeueItem(ctx, item.ID, now.Add(delay), out.Err.Error()); err != nil {
				return fmt.Errorf("requeue item: %w", err)
			}
			ItemRetriesTotal.WithLabelValues(op.OperationType).Inc()
			log.Info("Item scheduled for retry",
				zap.Int("retry_count", item.RetryCount+1),
				zap.Duration("backoff", delay),
				zap.Error(out.Err),
			)
			return nil
		}
		completion.Status = ItemFailed
		completion.ErrorMessage = out.Err.Error()
		log.Warn("Item failed", zap.Bool("retryable", out.Retryable), zap.Error(out.Err))
	}

	updated, err := p.store.CompleteItem(ctx, item.ID, completion)
	if err != nil {
		p.release(item)
		return fmt.Errorf("complete item: %w", err)
	}
	ItemsProcessedTotal.WithLabelValues(op.OperationType, string(completion.Status)).Inc()

	progress := Aggregate(updated.Counters(), updated.StartedAt, now)
	if err := p.store.SaveProgress(ctx, updated.ID, progress); err != nil {
		log.Warn("Save progress failed", zap.Error(err))
	}
	p.manager.Publish(ctx, updated)

	active, err := p.store.CountActiveItems(ctx, updated.ID)
	if err != nil {
		return fmt.Errorf("count active items: %w", err)
	}
	if active == 0 {
		if _, err := p.manager.Finalize(ctx, updated.ID); err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
	}
	return nil
}

// awaitStopped holds the item until the cancelled executor returns so a retry never overlaps
// the attempt still in flight. An executor that ignores cancellation past StopGrace fails the
// item permanently.
func (p *Pool) awaitStopped(resCh <-chan Outcome, cause error) Outcome {
	grace := time.NewTimer(p.cfg.StopGrace)
	defer grace.Stop()

	select {
	case late := <-resCh:
		if late.Kind != OutcomeFailure {
			return late
		}
		return Failure(fmt.Errorf("item timed out after %s: %w", p.cfg.ItemTimeout, cause), true)
	case <-grace.C:
		p.log.Warn("Executor ignored cancellation", zap.Duration("grace", p.cfg.StopGrace))
		return Failure(fmt.Errorf("item timed out after %s and executor did not stop within %s: %w",
			p.cfg.ItemTimeout, p.cfg.StopGrace, cause), false)
	}
}
