package bulk_operation

import (
	"math"
	"time"
)

// Counters are the item tallies of an operation.
type Counters struct {
	Total      int64
	Processed  int64
	Successful int64
	Failed     int64
	Skipped    int64
}

// Progress is the derived view of an operation's counters.
type Progress struct {
	ProcessedItems          int64      `json:"processed_items"`
	ProgressPercentage      float64    `json:"progress_percentage"`
	AvgItemTimeMs           float64    `json:"avg_item_time_ms"`
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time,omitempty"`
}

// Aggregate derives progress from counters. It is pure and safe to call on any
// snapshot, including one read while workers are still updating counters.
func Aggregate(c Counters, startedAt *time.Time, now time.Time) Progress {
	total := c.Total
	if total < 0 {
		total = 0
	}
	processed := c.Successful + c.Failed + c.Skipped
	if processed < 0 {
		processed = 0
	}
	if processed > total {
		processed = total
	}

	p := Progress{
		ProcessedItems:     processed,
		ProgressPercentage: Percentage(processed, total),
	}

	if startedAt != nil && processed > 0 {
		elapsed := now.Sub(*startedAt).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
		p.AvgItemTimeMs = AverageItemTime(elapsed, processed)
		if processed < total {
			p.EstimatedCompletionTime = EstimatedCompletion(*startedAt, p.AvgItemTimeMs, total-processed)
		}
	}
	return p
}

// Percentage is processed/total*100 rounded to two decimals and clamped to [0, 100].
func Percentage(processed, total int64) float64 {
	if total <= 0 || processed <= 0 {
		return 0
	}
	if processed >= total {
		return 100
	}
	pct := float64(processed) / float64(total) * 100
	return math.Round(pct*100) / 100
}

// AverageItemTime is a simple average, 0 when nothing was processed.
func AverageItemTime(processingTimeMs, processed int64) float64 {
	if processed <= 0 {
		return 0
	}
	return float64(processingTimeMs) / float64(processed)
}

// EstimatedCompletion is started_at + avg_item_time_ms * remaining.
func EstimatedCompletion(startedAt time.Time, avgItemTimeMs float64, remaining int64) *time.Time {
	if remaining < 0 {
		remaining = 0
	}
	eta := startedAt.Add(time.Duration(avgItemTimeMs * float64(remaining) * float64(time.Millisecond)))
	return &eta
}

// Tally builds counters from per-status item counts.
func Tally(byStatus map[ItemStatus]int64, total int64) Counters {
	c := Counters{
		Total:      total,
		Successful: byStatus[ItemSuccess],
		Failed:     byStatus[ItemFailed],
		Skipped:    byStatus[ItemSkipped],
	}
	c.Processed = c.Successful + c.Failed + c.Skipped
	return c
}

// FinalStatus classifies an operation whose items are all terminal.
func FinalStatus(c Counters) OperationStatus {
	switch {
	case c.Failed == 0:
		return StatusCompleted
	case c.Successful > 0:
		return StatusPartialSuccess
	default:
		return StatusFailed
	}
}

// WithEstimate fills the read-only estimated_completion_time of a snapshot.
func WithEstimate(op *BulkOperation, now time.Time) *BulkOperation {
	if op == nil || op.Status != StatusProcessing {
		return op
	}
	op.EstimatedCompletionTime = Aggregate(op.Counters(), op.StartedAt, now).EstimatedCompletionTime
	return op
}
