package bulk_operation

import "time"

// RetryPolicy decides whether failed items are retried and when.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Minute}
}

// ShouldRetry only retries transient failures, and only while the operation allows it.
func (p RetryPolicy) ShouldRetry(item *BulkOperationItem, op *BulkOperation, outcome Outcome) bool {
	if outcome.Kind != OutcomeFailure || !outcome.Retryable {
		return false
	}
	return op.RetryFailed && item.RetryCount < op.MaxRetries
}

// Backoff is BaseDelay * 2^retryCount, capped at MaxDelay.
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	d := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
