package bulk_operation

import (
	"context"
	"sync"
	"time"
)

// AuditEvent describes one operation status transition.
type AuditEvent struct {
	OperationID   string
	OperationType string
	OldStatus     OperationStatus
	NewStatus     OperationStatus
	Actor         string
	Action        string
	Reason        string
	Timestamp     time.Time
}

// Audit actions attached to events.
const (
	AuditCreated   = "created"
	AuditApproved  = "approved"
	AuditEnqueued  = "enqueued"
	AuditStarted   = "started"
	AuditFinalized = "finalized"
	AuditCancelled = "cancelled"
)

// AuditEmitter receives lifecycle events for external persistence.
type AuditEmitter interface {
	Emit(ctx context.Context, event AuditEvent) error
}

type NopAuditEmitter struct{}

func (NopAuditEmitter) Emit(context.Context, AuditEvent) error { return nil }

// ProgressEvent is the streamed snapshot of an operation's progress.
type ProgressEvent struct {
	OperationID             string          `json:"operation_id"`
	OperationType           string          `json:"operation_type"`
	Status                  OperationStatus `json:"status"`
	TotalItems              int64           `json:"total_items"`
	ProcessedItems          int64           `json:"processed_items"`
	SuccessfulItems         int64           `json:"successful_items"`
	FailedItems             int64           `json:"failed_items"`
	SkippedItems            int64           `json:"skipped_items"`
	ProgressPercentage      float64         `json:"progress_percentage"`
	EstimatedCompletionTime *time.Time      `json:"estimated_completion_time,omitempty"`
	Timestamp               time.Time       `json:"timestamp"`
}

func NewProgressEvent(op *BulkOperation, now time.Time) ProgressEvent {
	p := Aggregate(op.Counters(), op.StartedAt, now)
	pct := p.ProgressPercentage
	if op.ProgressPercentage > pct {
		pct = op.ProgressPercentage
	}
	ev := ProgressEvent{
		OperationID:        op.ID,
		OperationType:      op.OperationType,
		Status:             op.Status,
		TotalItems:         op.TotalItems,
		ProcessedItems:     p.ProcessedItems,
		SuccessfulItems:    op.SuccessfulItems,
		FailedItems:        op.FailedItems,
		SkippedItems:       op.SkippedItems,
		ProgressPercentage: pct,
		Timestamp:          now,
	}
	if op.Status == StatusProcessing {
		ev.EstimatedCompletionTime = p.EstimatedCompletionTime
	}
	return ev
}

// ProgressPublisher fans progress events out to observers. Publishing never blocks the engine.
type ProgressPublisher interface {
	Publish(ctx context.Context, ev ProgressEvent)
}

type MultiPublisher []ProgressPublisher

func (m MultiPublisher) Publish(ctx context.Context, ev ProgressEvent) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// Hub delivers progress events to in-process subscribers of a single operation.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan ProgressEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan ProgressEvent]struct{})}
}

// Subscribe returns a channel of events for operationID and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(operationID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 32)

	h.mu.Lock()
	if h.subs[operationID] == nil {
		h.subs[operationID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[operationID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[operationID], ch)
			if len(h.subs[operationID]) == 0 {
				delete(h.subs, operationID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(_ context.Context, ev ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.OperationID] {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop
		}
	}
}

func (h *Hub) SubscriberCount(operationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[operationID])
}
