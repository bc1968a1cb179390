package push

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/metrics"
)

const (
	// receiptBatch is the largest id list one receipts call accepts.
	receiptBatch = 1000
	// receiptExpiry is how long the provider keeps receipts.
	receiptExpiry = 24 * time.Hour
)

// ReconcileResult summarizes one reconciliation pass
type ReconcileResult struct {
	OK        int
	Permanent int
	Failed    int
	Pending   int
	Expired   int
}

// Reconciler resolves provisional tickets against provider receipts
type Reconciler struct {
	tickets  TicketStore
	provider Provider
	health   tokenHealth
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(tickets TicketStore, provider Provider, devices device.Repository, logger *zap.Logger) *Reconciler {
	logger = logger.Named("receipts")
	return &Reconciler{
		tickets:  tickets,
		provider: provider,
		health:   tokenHealth{devices: devices, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces time.Now
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// RunOnce resolves every due ticket. Tickets without a receipt yet stay
// queued until the provider's retention has passed.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	now := r.now()

	// Unresolved tickets keep their place at the head of the queue, so the
	// next page starts after them.
	offset := 0
	for {
		due, err := r.tickets.Due(ctx, now, offset, receiptBatch)
		if err != nil {
			return result, err
		}
		if len(due) == 0 {
			return result, nil
		}

		done, err := r.reconcile(ctx, due, now, &result)
		if err != nil {
			return result, err
		}
		if len(done) > 0 {
			if err := r.tickets.Remove(ctx, done...); err != nil {
				return result, err
			}
		}
		offset += len(due) - len(done)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, due []PendingTicket, now time.Time, result *ReconcileResult) ([]string, error) {
	ids := make([]string, len(due))
	for i, t := range due {
		ids[i] = t.TicketID
	}

	receipts, err := r.provider.Receipts(ctx, ids)
	if err != nil {
		r.logger.Warn("receipt fetch failed", zap.Int("tickets", len(ids)), zap.Error(err))
		return nil, err
	}

	done := make([]string, 0, len(due))
	for _, t := range due {
		receipt, ok := receipts[t.TicketID]
		if !ok {
			if now.Sub(t.DueAt) > receiptExpiry {
				result.Expired++
				done = append(done, t.TicketID)
				continue
			}
			result.Pending++
			continue
		}

		metrics.RecordReceipt(string(receipt.Outcome))
		switch receipt.Outcome {
		case OutcomeOK:
			result.OK++
		case OutcomePermanent:
			result.Permanent++
		default:
			result.Failed++
		}
		r.health.apply(ctx, t.Token, receipt.Outcome, receipt.Code)
		done = append(done, t.TicketID)
	}

	if result.Permanent > 0 || result.Failed > 0 {
		r.logger.Info("receipts reconciled",
			zap.Int("ok", result.OK),
			zap.Int("permanent", result.Permanent),
			zap.Int("failed", result.Failed),
		)
	}
	return done, nil
}
