package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/metrics"
)

// TaskRunner runs detached tasks. A detached task owns its failure: the
// error or panic is logged and counted here and never returned to whoever
// started it.
type TaskRunner struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewTaskRunner creates a task runner.
func NewTaskRunner(logger *zap.Logger) *TaskRunner {
	return &TaskRunner{logger: logger.Named("tasks")}
}

// Go starts fn in its own goroutine. The returned channel closes when fn
// has settled, whatever its outcome.
func (r *TaskRunner) Go(ctx context.Context, name string, fields []zap.Field, fn func(ctx context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		r.run(ctx, name, fields, fn)
	}()
	return done
}

// Wait blocks until every task started by this runner has settled.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

func (r *TaskRunner) run(ctx context.Context, name string, fields []zap.Field, fn func(ctx context.Context) error) {
	start := time.Now()
	failed := false
	defer func() {
		if p := recover(); p != nil {
			failed = true
			r.logger.Error("detached task panicked",
				append(fields,
					zap.String("task", name),
					zap.String("panic", fmt.Sprint(p)),
					zap.ByteString("stack", debug.Stack()),
				)...,
			)
		}
		metrics.RecordHandler(name, time.Since(start), failed)
	}()

	if err := fn(ctx); err != nil {
		failed = true
		r.logger.Error("detached task failed",
			append(fields, zap.String("task", name), zap.Error(err))...,
		)
	}
}
