package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	persistence "github.com/momentapp/notifier/internal/infrastructure/persistence/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the notifier tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cleanup, err := persistence.NewDB(cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := persistence.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("migrations complete", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}
