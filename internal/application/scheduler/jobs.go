package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	"github.com/momentapp/notifier/internal/domain/scheduling"
)

// Job names
const (
	JobSweep             = "sweep"
	JobReceipts          = "receipts"
	JobRevalidation      = "revalidation"
	JobNotificationPurge = "notification-purge"
	JobEventStorePurge   = "event-store-purge"
	JobScheduledPurge    = "scheduled-purge"
	JobStaleTokenCleanup = "stale-token-cleanup"
)

const (
	eventStorePurgeBatch  = 500
	staleInvalidTokenAge  = 7 * 24 * time.Hour
	staleTokenRefreshSpan = 90 * 24 * time.Hour
)

// Archiver copies event store rows somewhere durable before they are purged
type Archiver interface {
	Archive(ctx context.Context, batch []*events.StoredEvent) error
}

// Clock returns the current time
type Clock func() time.Time

// SweepJob runs the sweeper once per interval, starting immediately.
func SweepJob(sweeper *Sweeper, interval time.Duration) Job {
	return Job{
		Name:       JobSweep,
		Interval:   interval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			_, err := sweeper.RunOnce(ctx)
			return err
		},
	}
}

// NotificationPurgeJob deletes notification rows older than retention.
func NotificationPurgeJob(repo notification.Repository, retention, interval time.Duration, now Clock, logger *zap.Logger) Job {
	return Job{
		Name:     JobNotificationPurge,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := repo.DeleteOlderThan(ctx, now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("purged notifications", zap.Int64("count", n))
			}
			return nil
		},
	}
}

// ScheduledPurgeJob deletes fired and failed scheduled events older than retention.
func ScheduledPurgeJob(repo scheduling.Repository, retention, interval time.Duration, now Clock, logger *zap.Logger) Job {
	return Job{
		Name:     JobScheduledPurge,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := repo.PurgeFinished(ctx, now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("purged scheduled events", zap.Int64("count", n))
			}
			return nil
		},
	}
}

// StaleTokenCleanupJob removes confirmed invalid tokens older than a week
// and tokens not refreshed for 90 days.
func StaleTokenCleanupJob(repo device.Repository, interval time.Duration, now Clock, logger *zap.Logger) Job {
	return Job{
		Name:     JobStaleTokenCleanup,
		Interval: interval,
		Run: func(ctx context.Context) error {
			at := now()
			n, err := repo.CleanupStaleTokens(ctx, at.Add(-staleInvalidTokenAge), at.Add(-staleTokenRefreshSpan))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("removed stale device tokens", zap.Int64("count", n))
			}
			return nil
		},
	}
}

// EventStorePurgeJob deletes event store rows older than retention in
// batches. With an archiver, each batch is archived before it is deleted
// and a failed archive keeps the batch.
func EventStorePurgeJob(store events.Store, archiver Archiver, retention, interval time.Duration, now Clock, logger *zap.Logger) Job {
	return Job{
		Name:     JobEventStorePurge,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := PurgeEventStore(ctx, store, archiver, now().Add(-retention))
			if n > 0 {
				logger.Info("purged event store", zap.Int64("count", n))
			}
			return err
		},
	}
}

// PurgeEventStore removes every row older than cutoff and returns how many
// were deleted.
func PurgeEventStore(ctx context.Context, store events.Store, archiver Archiver, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := store.OlderThan(ctx, cutoff, eventStorePurgeBatch)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		if archiver != nil {
			if err := archiver.Archive(ctx, batch); err != nil {
				return total, fmt.Errorf("archiving %d events: %w", len(batch), err)
			}
		}

		ids := make([]string, len(batch))
		for i, record := range batch {
			ids[i] = record.ID
		}
		n, err := store.DeleteByIDs(ctx, ids)
		total += n
		if err != nil {
			return total, err
		}
		if len(batch) < eventStorePurgeBatch {
			return total, nil
		}
	}
}
