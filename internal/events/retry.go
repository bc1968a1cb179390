package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backoff bounds a connect retry loop. The delay starts at Initial and
// doubles after every failed attempt, capped at Max.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultMaxBackoff caps the delay between connect attempts.
const DefaultMaxBackoff = 30 * time.Second

// Retry runs fn until it succeeds, the attempts are used up or ctx is done.
// what names the resource in the warning logged after each failed attempt.
func Retry(ctx context.Context, b Backoff, logger *zap.Logger, what string, fn func() error) error {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := b.Initial
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = DefaultMaxBackoff
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		logger.Warn("connect attempt failed",
			zap.String("component", what),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
