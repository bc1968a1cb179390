package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentapp/notifier/internal/application/scheduler"
)

func TestScheduler_AddValidatesJobs(t *testing.T) {
	s := scheduler.New(zaptest.NewLogger(t))
	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.Add(scheduler.Job{Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(scheduler.Job{Name: "a", Interval: 0, Run: noop}))
	require.NoError(t, s.Add(scheduler.Job{Name: "a", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(scheduler.Job{Name: "a", Interval: time.Second, Run: noop}))
}

func TestScheduler_RunsJobsOnTheirTickers(t *testing.T) {
	s := scheduler.New(zaptest.NewLogger(t))

	var fast, eager int32
	require.NoError(t, s.Add(scheduler.Job{
		Name:     "fast",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&fast, 1)
			return nil
		},
	}))
	require.NoError(t, s.Add(scheduler.Job{
		Name:       "eager",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&eager, 1)
			return errors.New("boom")
		},
	}))

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fast) >= 3 && atomic.LoadInt32(&eager) == 1
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	statuses := s.JobStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "eager", statuses[0].Name)
	assert.Equal(t, "boom", statuses[0].LastError)
	assert.Equal(t, 1, statuses[0].Runs)
	assert.Equal(t, time.Hour, statuses[0].Interval)
	assert.Equal(t, "fast", statuses[1].Name)
	assert.Empty(t, statuses[1].LastError)
	assert.False(t, statuses[1].LastRun.IsZero())

	runs := atomic.LoadInt32(&fast)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runs, atomic.LoadInt32(&fast), "jobs must not run after Stop")
}

func TestScheduler_RunNowRecoversPanics(t *testing.T) {
	s := scheduler.New(zaptest.NewLogger(t))
	require.NoError(t, s.Add(scheduler.Job{
		Name:     "explode",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { panic("bad job") },
	}))

	err := s.RunNow(context.Background(), "explode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad job")
	assert.Error(t, s.RunNow(context.Background(), "missing"))

	statuses := s.JobStatus()
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].Runs)
	assert.False(t, statuses[0].Running)
}
