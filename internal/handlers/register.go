package handlers

import (
	"github.com/momentapp/notifier/internal/application/push"
	"github.com/momentapp/notifier/internal/domain/notification"
	"github.com/momentapp/notifier/internal/events"
	"github.com/momentapp/notifier/internal/ws"
)

// Subscribers are the bus handlers of the notifier. Nil members are skipped.
type Subscribers struct {
	EventStore    *EventStoreWriter
	Notifications *NotificationWriter
	Push          *push.Dispatcher
	Sockets       *ws.Router
}

// Register subscribes every configured handler to the bus
func Register(bus events.Bus, subs Subscribers) {
	if subs.EventStore != nil {
		bus.SubscribeToPattern("*", subs.EventStore.Handle, events.WithName("event-store"))
	}
	if subs.Notifications != nil {
		for _, t := range subs.Notifications.EventTypes() {
			bus.Subscribe(t, subs.Notifications.Handle, events.WithName("notifications"))
		}
	}
	if subs.Push != nil {
		for _, t := range notification.Types() {
			bus.Subscribe(t, subs.Push.Handle, events.WithName("push"))
		}
	}
	if subs.Sockets != nil {
		for _, t := range ws.RoutedTypes() {
			bus.Subscribe(t, subs.Sockets.Handle, events.WithName("sockets"))
		}
	}
}
