package push

import (
	"context"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/metrics"
)

// tokenHealth applies delivery outcomes to the device table. Failures to
// write are logged and never stop delivery to other devices.
type tokenHealth struct {
	devices device.Repository
	logger  *zap.Logger
}

func (h tokenHealth) apply(ctx context.Context, token string, outcome Outcome, code string) {
	switch outcome {
	case OutcomePermanent:
		h.invalidate(ctx, token, code)
	case OutcomeError:
		h.fail(ctx, token, code)
	}
}

func (h tokenHealth) invalidate(ctx context.Context, token, reason string) {
	if err := h.devices.MarkTokenInvalid(ctx, token, reason); err != nil {
		h.logger.Error("failed to mark token invalid", zap.String("token", mask(token)), zap.Error(err))
		return
	}
	metrics.RecordTransition(string(device.StatusConfirmedInvalid))
	h.logger.Info("token confirmed invalid", zap.String("token", mask(token)), zap.String("reason", reason))
}

func (h tokenHealth) fail(ctx context.Context, token, reason string) {
	d, err := h.devices.IncrementFailureCount(ctx, token)
	if err != nil {
		h.logger.Error("failed to record token failure", zap.String("token", mask(token)), zap.Error(err))
		return
	}
	if d.Status != device.StatusActive {
		metrics.RecordTransition(string(d.Status))
	}
	h.logger.Warn("push delivery failed",
		zap.String("token", mask(token)),
		zap.String("reason", reason),
		zap.Int("failure_count", d.FailureCount),
		zap.String("status", string(d.Status)),
	)
}

func (h tokenHealth) restore(ctx context.Context, token string) {
	if err := h.devices.MarkTokenActive(ctx, token); err != nil {
		h.logger.Error("failed to mark token active", zap.String("token", mask(token)), zap.Error(err))
		return
	}
	metrics.RecordTransition(string(device.StatusActive))
}

// mask keeps tokens out of logs.
func mask(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
