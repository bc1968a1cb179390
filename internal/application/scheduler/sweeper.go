package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/scheduling"
	"github.com/momentapp/notifier/internal/metrics"
)

// Publisher hands an event to the bus
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Fired   int
	Retried int
	Failed  int
}

// Sweeper publishes scheduled events whose time has come. It assumes it is
// the only sweeper running against the table.
type Sweeper struct {
	repo        scheduling.Repository
	bus         Publisher
	logger      *zap.Logger
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// NewSweeper creates a sweeper with a batch of 50 and 3 attempts
func NewSweeper(repo scheduling.Repository, bus Publisher, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		repo:        repo,
		bus:         bus,
		logger:      logger.Named("sweeper"),
		batchSize:   50,
		maxAttempts: scheduling.MaxAttempts,
		now:         time.Now,
	}
}

// WithBatchSize sets how many rows one sweep selects
func (s *Sweeper) WithBatchSize(n int) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithMaxAttempts sets the publish attempts before a row is failed
func (s *Sweeper) WithMaxAttempts(n int) *Sweeper {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// WithClock replaces time.Now
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// RunOnce publishes every due event of one batch, oldest first. A missing
// table yields an empty result.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	ready, err := s.repo.Ready(ctx)
	if err != nil {
		return result, err
	}
	if !ready {
		s.logger.Debug("scheduled events table not present, skipping sweep")
		return result, nil
	}

	due, err := s.repo.Due(ctx, s.now(), s.maxAttempts, s.batchSize)
	if err != nil {
		return result, err
	}
	if len(due) == 0 {
		return result, nil
	}

	s.logger.Debug("processing due scheduled events", zap.Int("count", len(due)))

	for _, scheduled := range due {
		switch s.fire(ctx, scheduled) {
		case scheduling.StatusFired:
			result.Fired++
		case scheduling.StatusFailed:
			result.Failed++
		default:
			result.Retried++
		}
	}

	if result.Fired > 0 || result.Failed > 0 {
		s.logger.Info("sweep finished",
			zap.Int("fired", result.Fired),
			zap.Int("retried", result.Retried),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *Sweeper) fire(ctx context.Context, scheduled *scheduling.ScheduledEvent) scheduling.Status {
	event, err := scheduled.Event()
	if err != nil {
		// Undecodable rows never succeed, so they fail on the first attempt.
		s.logger.Error("failed to decode scheduled event",
			zap.String("scheduled_id", scheduled.ID),
			zap.Error(err),
		)
		return s.recordFailure(ctx, scheduled, err, 1)
	}

	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish scheduled event",
			zap.String("scheduled_id", scheduled.ID),
			zap.String("event_type", string(event.Type)),
			zap.Int("attempts", scheduled.Attempts+1),
			zap.Error(err),
		)
		return s.recordFailure(ctx, scheduled, err, s.maxAttempts)
	}

	if err := s.repo.MarkFired(ctx, scheduled.ID); err != nil {
		// The event is out; a later sweep may publish it again.
		s.logger.Error("failed to mark scheduled event fired",
			zap.String("scheduled_id", scheduled.ID),
			zap.Error(err),
		)
	}
	metrics.RecordSweep(string(scheduling.StatusFired))
	return scheduling.StatusFired
}

func (s *Sweeper) recordFailure(ctx context.Context, scheduled *scheduling.ScheduledEvent, cause error, maxAttempts int) scheduling.Status {
	status, err := s.repo.RecordFailure(ctx, scheduled.ID, cause, maxAttempts)
	if err != nil {
		s.logger.Error("failed to record scheduled event failure",
			zap.String("scheduled_id", scheduled.ID),
			zap.Error(err),
		)
		status = scheduling.StatusPending
	}
	if status == scheduling.StatusFailed {
		s.logger.Warn("scheduled event failed permanently", zap.String("scheduled_id", scheduled.ID))
	}
	metrics.RecordSweep(string(status))
	return status
}
