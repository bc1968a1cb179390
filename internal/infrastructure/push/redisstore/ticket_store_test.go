package redisstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentapp/notifier/internal/application/push"
	"github.com/momentapp/notifier/internal/config"
	"github.com/momentapp/notifier/internal/infrastructure/push/redisstore"
)

func newStore(t *testing.T) *redisstore.TicketStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	// DB 15 is reserved for tests and flushed before each one.
	rdb, err := redisstore.NewClient(context.Background(), config.RedisConfig{Addr: addr, DB: 15})
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })

	return redisstore.NewTicketStore(rdb, zaptest.NewLogger(t))
}

func TestTicketStore_DueOrderAndRemove(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.Add(ctx,
		push.PendingTicket{TicketID: "late", Token: "tok-1", UserID: "U1", DueAt: now.Add(-time.Minute)},
		push.PendingTicket{TicketID: "early", Token: "tok-2", UserID: "U1", DueAt: now.Add(-time.Hour)},
		push.PendingTicket{TicketID: "future", Token: "tok-3", UserID: "U2", DueAt: now.Add(time.Hour)},
	))

	due, err := store.Due(ctx, now, 0, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].TicketID)
	assert.Equal(t, "tok-2", due[0].Token)
	assert.True(t, due[0].DueAt.Equal(now.Add(-time.Hour)))
	assert.Equal(t, "late", due[1].TicketID)

	limited, err := store.Due(ctx, now, 0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "early", limited[0].TicketID)

	skipped, err := store.Due(ctx, now, 1, 10)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "late", skipped[0].TicketID)

	require.NoError(t, store.Remove(ctx, "early", "late"))
	due, err = store.Due(ctx, now.Add(2*time.Hour), 0, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "future", due[0].TicketID)
}
