package events_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
)

func newEvent(t domainevents.EventType) *domainevents.Event {
	return domainevents.New(t, domainevents.AggregateMomentRequest, "agg-1", 1, time.Now(), nil, domainevents.Metadata{Source: "test"})
}

func TestRegistry_DispatchesExactAndPatternHandlers(t *testing.T) {
	registry := events.NewRegistry(zaptest.NewLogger(t))

	var mu sync.Mutex
	var calls []string
	record := func(name string) domainevents.Handler {
		return func(ctx context.Context, e *domainevents.Event) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name)
			return nil
		}
	}

	registry.Add(domainevents.MomentRequestCreated, record("exact"))
	registry.Add(domainevents.MomentRequestApproved, record("other-exact"))
	registry.AddPattern("moment.*", record("moment-pattern"))
	registry.AddPattern("contact.*", record("contact-pattern"))
	registry.AddPattern("*", record("wildcard"))

	registry.Dispatch(context.Background(), newEvent(domainevents.MomentRequestCreated))

	assert.ElementsMatch(t, []string{"exact", "moment-pattern", "wildcard"}, calls)
	assert.Equal(t, 3, registry.HandlerCount(domainevents.MomentRequestCreated))
	assert.Equal(t, 2, registry.HandlerCount(domainevents.ContactRegistered))
}

func TestRegistry_FailureIsolation(t *testing.T) {
	registry := events.NewRegistry(zaptest.NewLogger(t))

	var succeeded atomic.Int32
	registry.Add(domainevents.MomentReminderDue, func(ctx context.Context, e *domainevents.Event) error {
		return errors.New("store unavailable")
	}, events.WithName("failing"))
	registry.Add(domainevents.MomentReminderDue, func(ctx context.Context, e *domainevents.Event) error {
		panic("boom")
	}, events.WithName("panicking"))
	registry.Add(domainevents.MomentReminderDue, func(ctx context.Context, e *domainevents.Event) error {
		succeeded.Add(1)
		return nil
	})
	registry.AddPattern("*", func(ctx context.Context, e *domainevents.Event) error {
		succeeded.Add(1)
		return nil
	})

	assert.NotPanics(t, func() {
		registry.Dispatch(context.Background(), newEvent(domainevents.MomentReminderDue))
	})
	assert.Equal(t, int32(2), succeeded.Load())
}

func TestRegistry_HandlersRunConcurrently(t *testing.T) {
	registry := events.NewRegistry(zaptest.NewLogger(t))

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	blocking := func(ctx context.Context, e *domainevents.Event) error {
		started.Done()
		<-release
		return nil
	}
	registry.Add(domainevents.MomentUpdated, blocking)
	registry.Add(domainevents.MomentUpdated, blocking)

	finished := make(chan struct{})
	go func() {
		registry.Dispatch(context.Background(), newEvent(domainevents.MomentUpdated))
		close(finished)
	}()

	// Both handlers must be running at the same time before either returns.
	started.Wait()
	select {
	case <-finished:
		t.Fatal("dispatch returned before handlers settled")
	default:
	}
	close(release)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
	}
}

func TestRegistry_NoHandlers(t *testing.T) {
	registry := events.NewRegistry(zaptest.NewLogger(t))

	registry.Dispatch(context.Background(), newEvent(domainevents.UserVerified))
	assert.Zero(t, registry.HandlerCount(domainevents.UserVerified))
}
