package grpcserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const defaultCheckInterval = 10 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) bool

// HealthServer serves the standard gRPC health protocol for the notifier.
// The service status follows the checks: it is SERVING only while every
// check passes.
type HealthServer struct {
	Server *grpc.Server

	service  string
	health   *health.Server
	checks   map[string]Check
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	serving bool
}

// New creates a gRPC server with logging and recovery interceptors and the
// health service registered under service.
func New(service string, checks map[string]Check, logger *zap.Logger) *HealthServer {
	logger = logger.Named("grpc")
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryRecovery(logger), unaryLogging(logger)),
		grpc.ChainStreamInterceptor(streamRecovery(logger), streamLogging(logger)),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, hs)
	hs.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{
		Server:   server,
		service:  service,
		health:   hs,
		checks:   checks,
		interval: defaultCheckInterval,
		logger:   logger,
	}
}

// WithInterval sets how often the checks run.
func (s *HealthServer) WithInterval(d time.Duration) *HealthServer {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Start evaluates the checks immediately and then on every interval until
// ctx is canceled or Shutdown is called.
func (s *HealthServer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.evaluate(ctx)
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evaluate(ctx)
			}
		}
	}()
}

func (s *HealthServer) evaluate(ctx context.Context) {
	serving := true
	for name, check := range s.checks {
		if !check(ctx) {
			serving = false
			s.logger.Warn("health check failing", zap.String("check", name))
		}
	}

	s.mu.Lock()
	changed := serving != s.serving
	s.serving = serving
	s.mu.Unlock()

	if !changed {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.service, status)
	s.logger.Info("health status changed", zap.String("status", status.String()))
}

// Shutdown stops probing, reports NOT_SERVING to every watcher and stops
// the gRPC server, forcing it when ctx expires first.
func (s *HealthServer) Shutdown(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.Server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout exceeded, forcing stop")
		s.Server.Stop()
	case <-stopped:
	}
}
