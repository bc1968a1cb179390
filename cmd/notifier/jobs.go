package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/application/scheduler"
	"github.com/momentapp/notifier/internal/container"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Publish every due scheduled event once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNotifier(cmd.Context(), func(ctx context.Context, n *container.Notifier) error {
			result, err := n.Sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			log.Info("sweep complete",
				zap.Int("fired", result.Fired),
				zap.Int("retried", result.Retried),
				zap.Int("failed", result.Failed),
			)
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run the retention purges and stale token cleanup once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNotifier(cmd.Context(), func(ctx context.Context, n *container.Notifier) error {
			jobs := []string{
				scheduler.JobNotificationPurge,
				scheduler.JobScheduledPurge,
				scheduler.JobEventStorePurge,
				scheduler.JobStaleTokenCleanup,
			}
			for _, name := range jobs {
				if err := n.Scheduler.RunNow(ctx, name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			return nil
		})
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Push token maintenance",
}

var removeTokensCmd = &cobra.Command{
	Use:   "remove <token>...",
	Short: "Delete the devices registered with the given push tokens",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNotifier(cmd.Context(), func(ctx context.Context, n *container.Notifier) error {
			removed, err := n.Devices.RemoveTokens(ctx, args)
			if err != nil {
				return err
			}
			log.Info("tokens removed", zap.Int64("devices", removed))
			return nil
		})
	},
}

func init() {
	tokensCmd.AddCommand(removeTokensCmd)
}

// withNotifier builds the container with the bus connected but without
// subscribers or the background scheduler, runs fn and tears down.
func withNotifier(ctx context.Context, fn func(ctx context.Context, n *container.Notifier) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	n, cleanup, err := container.InitializeNotifier(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer cleanup()

	if err := n.Bus.Connect(ctx); err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer func() {
		if err := n.Bus.Disconnect(ctx); err != nil {
			log.Warn("failed to disconnect event bus", zap.Error(err))
		}
	}()

	return fn(ctx, n)
}
