package container

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	devicesvc "github.com/momentapp/notifier/internal/application/device"
	"github.com/momentapp/notifier/internal/application/inbox"
	"github.com/momentapp/notifier/internal/application/publisher"
	"github.com/momentapp/notifier/internal/application/push"
	"github.com/momentapp/notifier/internal/application/scheduler"
	"github.com/momentapp/notifier/internal/config"
	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	"github.com/momentapp/notifier/internal/domain/scheduling"
	busevents "github.com/momentapp/notifier/internal/events"
	"github.com/momentapp/notifier/internal/handlers"
	"github.com/momentapp/notifier/internal/httpapi"
	"github.com/momentapp/notifier/internal/infrastructure/archive"
	infraevents "github.com/momentapp/notifier/internal/infrastructure/events"
	"github.com/momentapp/notifier/internal/infrastructure/push/expo"
	"github.com/momentapp/notifier/internal/infrastructure/push/redisstore"
	"github.com/momentapp/notifier/internal/ws"
	"github.com/momentapp/notifier/pkg/auth"
)

// Notifier holds every long lived component of the service
type Notifier struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB
	Bus         busevents.Bus
	Publisher   *publisher.EventPublisher
	Hub         *ws.Hub
	Devices     *devicesvc.Service
	Sweeper     *scheduler.Sweeper
	Scheduler   *scheduler.Scheduler
	HTTP        *gin.Engine
	Subscribers handlers.Subscribers
}

// Start connects the bus and, when enabled, starts the maintenance jobs.
// Subscribers are registered before the bus connects so broker adapters
// consume with a complete registry.
func (n *Notifier) Start(ctx context.Context) error {
	handlers.Register(n.Bus, n.Subscribers)
	if err := n.Bus.Connect(ctx); err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	if n.Config.Scheduler.Enabled {
		n.Scheduler.Start(ctx)
	}
	return nil
}

// Stop halts the jobs and disconnects the bus.
func (n *Notifier) Stop(ctx context.Context) {
	n.Scheduler.Stop()
	if err := n.Bus.Disconnect(ctx); err != nil {
		n.Logger.Warn("failed to disconnect event bus", zap.Error(err))
	}
}

func provideBus(cfg *config.Config, logger *zap.Logger) (busevents.Bus, error) {
	return infraevents.NewEventBus(cfg.EventBus, logger)
}

func provideJWT(cfg *config.Config, logger *zap.Logger) *auth.JWTManager {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn("no JWT secret configured, generated an ephemeral one")
		secret = auth.GenerateSecret()
	}
	return auth.NewJWTManager(secret, cfg.Service.Name, auth.DefaultAccessTTL)
}

func providePublisher(bus busevents.Bus, scheduled scheduling.Repository, logger *zap.Logger) *publisher.EventPublisher {
	return publisher.New(bus, scheduled, logger)
}

func provideProvider(cfg *config.Config, logger *zap.Logger) push.Provider {
	return expo.NewClient(cfg.Push, logger)
}

// provideTicketStore keeps pending tickets in redis when it is enabled so
// receipts survive restarts, and in memory otherwise.
func provideTicketStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (push.TicketStore, func(), error) {
	if !cfg.Redis.Enabled {
		return push.NewMemoryTicketStore(), func() {}, nil
	}
	rdb, err := redisstore.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return redisstore.NewTicketStore(rdb, logger), cleanup, nil
}

func provideDispatcher(cfg *config.Config, devices device.Repository, provider push.Provider, tickets push.TicketStore, logger *zap.Logger) *push.Dispatcher {
	if !cfg.Push.Enabled {
		return nil
	}
	return push.NewDispatcher(devices, provider, tickets, logger,
		push.WithChunkSize(cfg.Push.ChunkSize),
		push.WithReceiptDelay(cfg.Push.ReceiptDelay),
	)
}

// provideArchiver returns nil when archival is disabled; purged rows are
// then dropped without a copy.
func provideArchiver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (scheduler.Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	storage, err := archive.NewS3Storage(ctx, cfg.Archive, logger)
	if err != nil {
		return nil, err
	}
	return archive.NewEventArchiver(storage, logger), nil
}

func provideSweeper(cfg *config.Config, repo scheduling.Repository, bus busevents.Bus, logger *zap.Logger) *scheduler.Sweeper {
	return scheduler.NewSweeper(repo, bus, logger).
		WithBatchSize(cfg.Scheduler.SweepBatch).
		WithMaxAttempts(cfg.Scheduler.MaxAttempts)
}

func provideScheduler(
	cfg *config.Config,
	sweeper *scheduler.Sweeper,
	notes notification.Repository,
	scheduled scheduling.Repository,
	devices device.Repository,
	store events.Store,
	archiver scheduler.Archiver,
	tickets push.TicketStore,
	provider push.Provider,
	logger *zap.Logger,
) (*scheduler.Scheduler, error) {
	sc := cfg.Scheduler
	s := scheduler.New(logger)

	jobs := []scheduler.Job{
		scheduler.SweepJob(sweeper, sc.SweepInterval),
		scheduler.NotificationPurgeJob(notes, sc.NotificationRetention, sc.PurgeInterval, time.Now, logger),
		scheduler.ScheduledPurgeJob(scheduled, sc.ScheduledRetention, sc.PurgeInterval, time.Now, logger),
		scheduler.StaleTokenCleanupJob(devices, sc.TokenCleanupInterval, time.Now, logger),
		scheduler.EventStorePurgeJob(store, archiver, sc.EventStoreRetention, sc.EventStorePurgeEvery, time.Now, logger),
	}

	if cfg.Push.Enabled {
		reconciler := push.NewReconciler(tickets, provider, devices, logger)
		revalidator := push.NewRevalidator(devices, provider, logger)
		jobs = append(jobs,
			scheduler.Job{
				Name:     scheduler.JobReceipts,
				Interval: sc.ReceiptInterval,
				Run: func(ctx context.Context) error {
					_, err := reconciler.RunOnce(ctx)
					return err
				},
			},
			scheduler.Job{
				Name:     scheduler.JobRevalidation,
				Interval: sc.RevalidationInterval,
				Run: func(ctx context.Context) error {
					_, err := revalidator.RunOnce(ctx)
					return err
				},
			},
		)
	}

	for _, job := range jobs {
		if err := s.Add(job); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func provideSubscribers(
	store events.Store,
	notes notification.Repository,
	dispatcher *push.Dispatcher,
	router *ws.Router,
	logger *zap.Logger,
) handlers.Subscribers {
	return handlers.Subscribers{
		EventStore:    handlers.NewEventStoreWriter(store, logger),
		Notifications: handlers.NewNotificationWriter(notes, logger),
		Push:          dispatcher,
		Sockets:       router,
	}
}

func provideDeviceService(cfg *config.Config, devices device.Repository, pub *publisher.EventPublisher, logger *zap.Logger) *devicesvc.Service {
	return devicesvc.NewService(devices, pub, cfg.Service.Environment, logger)
}

func provideHTTP(
	cfg *config.Config,
	jwt *auth.JWTManager,
	devices *devicesvc.Service,
	inboxSvc *inbox.Service,
	hub *ws.Hub,
	bus busevents.Bus,
	db *gorm.DB,
	jobs *scheduler.Scheduler,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	return httpapi.NewRouter(httpapi.Deps{
		Auth:          jwt,
		Devices:       httpapi.NewDeviceHandler(devices),
		Notifications: httpapi.NewNotificationHandler(inboxSvc),
		Sockets:       ws.NewHandler(hub, jwt, logger),
		Jobs:          jobs.JobStatus,
		SocketStats: func() httpapi.SocketStats {
			return httpapi.SocketStats{Users: hub.ConnectedUserCount(), Connections: hub.ConnectionCount()}
		},
		MetricsPath:   metricsPath,
		Checks: map[string]httpapi.HealthCheck{
			"event_bus": func(ctx context.Context) error {
				if !bus.IsHealthy(ctx) {
					return fmt.Errorf("event bus is not healthy")
				}
				return nil
			},
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
	}, logger)
}
