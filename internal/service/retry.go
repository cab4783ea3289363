package service

import (
	"context"
	"log/slog"
	"time"

	"dayplanner/internal/apperr"
	"dayplanner/internal/observability"
)

// RetryPolicy bounds how often a failed transaction is re-run. The wait
// before attempt n+1 is Backoff*n.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}

// retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. fn must open its own transaction so that every attempt
// starts fresh. A transient failure that survives every attempt is reported
// as a conflict.
func retry(ctx context.Context, p RetryPolicy, op string, logger *slog.Logger, m *observability.Metrics, fn func() error) error {
	attempts := max(p.Attempts, 1)
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !apperr.Retryable(err) {
			return err
		}
		if attempt >= attempts {
			break
		}
		logger.Warn("retrying transaction", "op", op, "attempt", attempt, "error", err)
		m.RecordRetry(op)

		timer := time.NewTimer(p.Backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	if apperr.Is(err, apperr.Transient) {
		return apperr.Wrap(apperr.Conflict, "retries exhausted", err)
	}
	return err
}
