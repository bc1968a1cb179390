//go:build wireinject
// +build wireinject

package container

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/application/inbox"
	"github.com/momentapp/notifier/internal/config"
	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	"github.com/momentapp/notifier/internal/domain/scheduling"
	gormrepo "github.com/momentapp/notifier/internal/infrastructure/persistence/gorm"
	"github.com/momentapp/notifier/internal/ws"
)

var repositorySet = wire.NewSet(
	gormrepo.NewDB,
	gormrepo.NewDeviceRepository,
	wire.Bind(new(device.Repository), new(*gormrepo.DeviceRepository)),
	gormrepo.NewNotificationRepository,
	wire.Bind(new(notification.Repository), new(*gormrepo.NotificationRepository)),
	gormrepo.NewScheduledEventRepository,
	wire.Bind(new(scheduling.Repository), new(*gormrepo.ScheduledEventRepository)),
	gormrepo.NewEventStore,
	wire.Bind(new(events.Store), new(*gormrepo.EventStore)),
)

var pushSet = wire.NewSet(
	provideProvider,
	provideTicketStore,
	provideDispatcher,
)

var socketSet = wire.NewSet(
	ws.NewHub,
	ws.NewRouter,
)

// InitializeNotifier creates the notifier with all dependencies
func InitializeNotifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Notifier, func(), error) {
	wire.Build(
		repositorySet,
		pushSet,
		socketSet,

		// Event bus
		provideBus,
		providePublisher,

		// Services
		provideDeviceService,
		inbox.NewService,

		// Background jobs
		provideArchiver,
		provideSweeper,
		provideScheduler,

		// Surfaces
		provideJWT,
		provideSubscribers,
		provideHTTP,

		wire.Struct(new(Notifier), "*"),
	)

	return nil, nil, nil
}
