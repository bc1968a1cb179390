package push

import (
	"context"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/device"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// RevalidationResult summarizes one revalidation round
type RevalidationResult struct {
	Tested      int
	Restored    int
	Invalidated int
	Failed      int
}

// Revalidator retests suspected invalid tokens with a silent push
type Revalidator struct {
	devices   device.Repository
	provider  Provider
	health    tokenHealth
	logger    *zap.Logger
	limit     int
	chunkSize int
}

// NewRevalidator creates a revalidator probing up to 100 devices per run
func NewRevalidator(devices device.Repository, provider Provider, logger *zap.Logger) *Revalidator {
	logger = logger.Named("revalidation")
	return &Revalidator{
		devices:   devices,
		provider:  provider,
		health:    tokenHealth{devices: devices, logger: logger},
		logger:    logger,
		limit:     device.RevalidationBatch,
		chunkSize: DefaultChunkSize,
	}
}

// RunOnce retests one batch of suspected devices.
func (v *Revalidator) RunOnce(ctx context.Context) (RevalidationResult, error) {
	var result RevalidationResult

	suspects, err := v.devices.SuspectedInvalidDevices(ctx, v.limit)
	if err != nil {
		return result, err
	}
	if len(suspects) == 0 {
		return result, nil
	}

	for start := 0; start < len(suspects); start += v.chunkSize {
		end := start + v.chunkSize
		if end > len(suspects) {
			end = len(suspects)
		}
		batch := suspects[start:end]

		pushes := make([]Message, len(batch))
		for i, d := range batch {
			pushes[i] = silentPush(d.Token)
		}

		tickets, err := v.provider.Send(ctx, pushes)
		if err != nil {
			return result, apperrors.TransientDelivery("revalidation push", err)
		}

		for i, ticket := range tickets {
			if i >= len(batch) {
				break
			}
			token := batch[i].Token
			result.Tested++
			switch ticket.Outcome {
			case OutcomeOK:
				result.Restored++
				v.health.restore(ctx, token)
			case OutcomePermanent:
				result.Invalidated++
				v.health.invalidate(ctx, token, ticket.Code)
			default:
				result.Failed++
				v.health.fail(ctx, token, ticket.Code)
			}
		}
	}

	v.logger.Info("revalidation finished",
		zap.Int("tested", result.Tested),
		zap.Int("restored", result.Restored),
		zap.Int("invalidated", result.Invalidated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func silentPush(token string) Message {
	return Message{
		To:               token,
		Data:             map[string]interface{}{"type": "token_validation"},
		Priority:         "normal",
		ContentAvailable: true,
	}
}
