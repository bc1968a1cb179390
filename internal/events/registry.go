package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	domainevents "github.com/momentapp/notifier/internal/domain/events"
)

type subscription struct {
	name    string
	pattern string
	handler domainevents.Handler
}

// Registry keeps exact and pattern subscriptions and dispatches events to
// them. Every adapter delegates handler bookkeeping to a Registry.
type Registry struct {
	mu       sync.RWMutex
	exact    map[domainevents.EventType][]subscription
	patterns []subscription
	runner   *TaskRunner
	logger   *zap.Logger
	count    int
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		exact:  make(map[domainevents.EventType][]subscription),
		runner: NewTaskRunner(logger),
		logger: logger.Named("registry"),
	}
}

// Add registers handler for an exact event type.
func (r *Registry) Add(eventType domainevents.EventType, handler domainevents.Handler, opts ...SubscribeOption) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := r.newSubscription(string(eventType), handler, opts)
	r.exact[eventType] = append(r.exact[eventType], sub)
	r.logger.Debug("handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("handler", sub.name),
	)
}

// AddPattern registers handler for every event type matching pattern.
func (r *Registry) AddPattern(pattern string, handler domainevents.Handler, opts ...SubscribeOption) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := r.newSubscription(pattern, handler, opts)
	r.patterns = append(r.patterns, sub)
	r.logger.Debug("pattern handler subscribed",
		zap.String("pattern", pattern),
		zap.String("handler", sub.name),
	)
}

func (r *Registry) newSubscription(key string, handler domainevents.Handler, opts []SubscribeOption) subscription {
	r.count++
	sub := subscription{
		name:    fmt.Sprintf("%s#%d", key, r.count),
		pattern: key,
		handler: handler,
	}
	for _, opt := range opts {
		opt(&sub)
	}
	return sub
}

// resolve returns exact subscribers first, then matching pattern subscribers,
// each in registration order.
func (r *Registry) resolve(eventType domainevents.EventType) []subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]subscription, 0, len(r.exact[eventType])+len(r.patterns))
	subs = append(subs, r.exact[eventType]...)
	for _, p := range r.patterns {
		if domainevents.MatchesPattern(p.pattern, eventType) {
			subs = append(subs, p)
		}
	}
	return subs
}

// HandlerCount returns how many handlers would receive eventType.
func (r *Registry) HandlerCount(eventType domainevents.EventType) int {
	return len(r.resolve(eventType))
}

// Dispatch invokes every matching handler concurrently and waits until all
// of them have settled. Handler failures are logged by the task runner and
// never returned.
func (r *Registry) Dispatch(ctx context.Context, event *domainevents.Event) {
	subs := r.resolve(event.Type)
	if len(subs) == 0 {
		r.logger.Debug("no handlers for event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		)
		return
	}

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("aggregate_id", event.AggregateID),
	}

	done := make([]<-chan struct{}, 0, len(subs))
	for _, sub := range subs {
		h := sub.handler
		done = append(done, r.runner.Go(ctx, sub.name, fields, func(ctx context.Context) error {
			return h(ctx, event)
		}))
	}
	for _, d := range done {
		<-d
	}
}

// Wait blocks until every dispatched handler has settled.
func (r *Registry) Wait() {
	r.runner.Wait()
}
