package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/container"
	"github.com/momentapp/notifier/internal/grpcserver"
	persistence "github.com/momentapp/notifier/internal/infrastructure/persistence/gorm"
	pkgconfig "github.com/momentapp/notifier/pkg/config"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, socket and health servers with the background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "run database migrations before serving")
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("event_bus", cfg.EventBus.Adapter),
		zap.Bool("push", cfg.Push.Enabled),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	n, cleanup, err := container.InitializeNotifier(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer cleanup()

	if autoMigrate {
		if err := persistence.AutoMigrate(n.DB); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	if err := n.Start(ctx); err != nil {
		return err
	}

	healthServer := grpcserver.New(serviceName, map[string]grpcserver.Check{
		"event_bus": n.Bus.IsHealthy,
	}, log)
	healthServer.Start(ctx)

	grpcLis, err := net.Listen("tcp", pkgconfig.ListenAddress(cfg.Service.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}
	go func() {
		log.Info("starting gRPC health server", zap.Int("port", cfg.Service.GRPCPort))
		if err := healthServer.Server.Serve(grpcLis); err != nil {
			log.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    pkgconfig.ListenAddress(cfg.Service.HTTPPort),
		Handler: n.HTTP,
	}
	go func() {
		log.Info("starting HTTP server", zap.Int("port", cfg.Service.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	healthServer.Shutdown(shutdownCtx)
	n.Stop(shutdownCtx)
	log.Info("service shutdown complete")
	return nil
}
