package orchestrator

import (
	"context"
	"errors"
	"time"

	"scriptreel/internal/services"
)

// retryDelay returns base*2^(attempt-1), raised to any server Retry-After hint and
// capped at the configured maximum.
func (o *Orchestrator) retryDelay(attempt int, err error) time.Duration {
	delay := o.settings.RetryBaseDelay
	for i := 1; i < attempt && delay < o.settings.RetryMaxDelay; i++ {
		delay *= 2
	}
	var transient *services.TransientNetworkError
	if errors.As(err, &transient) && transient.RetryAfter > 0 {
		delay = max(delay, time.Duration(transient.RetryAfter)*time.Second)
	}
	return min(delay, o.settings.RetryMaxDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
