package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// TaskGroup tracks background goroutines so they can be cancelled and awaited
// together. Task errors are logged, never propagated: a failing task does not
// cancel its siblings.
type TaskGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	active atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewTaskGroup creates a TaskGroup whose tasks observe a context derived from parent.
func NewTaskGroup(parent context.Context) *TaskGroup {
	ctx, cancel := context.WithCancel(parent)
	return &TaskGroup{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled when the group is drained.
func (g *TaskGroup) Context() context.Context {
	return g.ctx
}

// Go runs fn in a tracked goroutine. Once Drain has started, fn is not run and
// Go reports false.
func (g *TaskGroup) Go(name string, fn func(ctx context.Context) error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		slog.DebugContext(g.ctx, "task rejected after drain", "task", name)
		return false
	}

	g.active.Add(1)
	g.group.Go(func() error {
		defer g.active.Add(-1)

		if err := fn(g.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.DebugContext(g.ctx, "background task ended with error", "task", name, "error", err)
		}
		return nil
	})
	return true
}

// Active returns the number of tasks still running.
func (g *TaskGroup) Active() int {
	return int(g.active.Load())
}

// Drain closes the group to new tasks, cancels every task and waits for all of
// them to return. Returns ctx.Err() if ctx ends first; the tasks keep their
// cancelled context.
func (g *TaskGroup) Drain(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()

	done := make(chan struct{})
	go func() {
		_ = g.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
