package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/config"
	"github.com/momentapp/notifier/pkg/logger"
)

const serviceName = "notifier"

var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "notifier <command>",
	Short:         "Event bus, push delivery and socket fan out for Moment",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(serviceName)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		logCfg := logger.DefaultConfig()
		logCfg.ServiceName = cfg.Service.Name
		logCfg.Environment = cfg.Service.Environment
		logCfg.Level = cfg.Logger.Level
		logCfg.Encoding = cfg.Logger.Format
		built, err := logger.NewFromConfig(logCfg)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		log = built
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, purgeCmd, tokensCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
