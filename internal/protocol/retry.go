// internal/protocol/retry.go
package protocol

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often a local bind is attempted
type RetryPolicy struct {
	Attempts int           `json:"attempts"`
	Delay    time.Duration `json:"delay"`
}

// bindWithRetry calls bind until it succeeds, the policy is exhausted or quit
// is closed. It returns the number of attempts made.
func bindWithRetry[T any](quit <-chan struct{}, policy RetryPolicy, logger *zap.Logger, bind func() (T, error)) (T, int, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		v, err := bind()
		if err == nil {
			if attempt > 1 {
				logger.Info("Bind succeeded after retry", zap.Int("attempt", attempt))
			}
			return v, attempt, nil
		}
		lastErr = err

		logger.Warn("Bind attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.Attempts),
			zap.Error(err),
		)

		if attempt == policy.Attempts {
			return zero, attempt, fmt.Errorf("%w after %d attempts: %w", ErrBindFailed, attempt, lastErr)
		}

		timer := time.NewTimer(policy.Delay)
		select {
		case <-quit:
			timer.Stop()
			return zero, attempt, fmt.Errorf("bind cancelled: %w", lastErr)
		case <-timer.C:
		}
	}

	return zero, 0, fmt.Errorf("%w: no attempts allowed", ErrBindFailed)
}
