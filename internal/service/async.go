package service

import (
	"context"
	"sync"
	"time"

	"course-service/internal/util"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Background runs best-effort side effects after the primary write has
// committed. Each task gets its own timeout, detached from the request, and
// failures only reach the log.
type Background struct {
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewBackground creates a runner with a per-task timeout
func NewBackground(timeout time.Duration) *Background {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Background{timeout: timeout, logger: util.GetLogger()}
}

// Go runs fn in its own goroutine. The span of parent is carried over so
// the task shows up in the same trace.
func (b *Background) Go(parent context.Context, name string, fn func(ctx context.Context) error) {
	span := trace.SpanFromContext(parent)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		ctx = trace.ContextWithSpan(ctx, span)

		if err := fn(ctx); err != nil {
			b.logger.Error("Background task failed",
				zap.String("task", name),
				zap.String("trace_id", util.TraceID(ctx)),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every started task has finished
func (b *Background) Wait() {
	b.wg.Wait()
}
