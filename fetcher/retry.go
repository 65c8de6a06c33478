package fetcher

import (
	"context"
	"time"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/models"
)

// RetryPolicy lists the statuses worth another attempt. Permanent
// failures such as 404 are absent.
type RetryPolicy map[models.Status]bool

// DefaultRetryPolicy retries transient network failures only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		models.StatusTimeout:         true,
		models.StatusConnectionError: true,
	}
}

type retryManager struct {
	policy     RetryPolicy
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *Metrics
}

func newRetryManager(cfg *config.Config, policy RetryPolicy, metrics *Metrics) *retryManager {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &retryManager{
		policy:     policy,
		maxRetries: cfg.MaxRetries,
		base:       cfg.RetryBackoff,
		max:        cfg.RetryBackoffMax,
		metrics:    metrics,
	}
}

// ShouldRetry reports whether an outcome after the given attempt (1-based)
// gets another try.
func (rm *retryManager) ShouldRetry(status models.Status, attempt int) bool {
	if attempt > rm.maxRetries {
		return false
	}
	return rm.policy[status]
}

// Wait sleeps for the backoff of the given retry, returning false when ctx
// ends first.
func (rm *retryManager) Wait(ctx context.Context, attempt int) bool {
	if rm.metrics != nil {
		rm.metrics.IncRetries()
	}
	timer := time.NewTimer(rm.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if rm.max > 0 && delay > rm.max {
		delay = rm.max
	}
	return delay
}
