package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/florianilch/devbadge/internal/observability"
)

// ErrAuthentication is wrapped by Gateway implementations when the remote
// service rejects the token.
var ErrAuthentication = errors.New("authentication failed")

// DefaultDrainTimeout bounds the drain step when no timeout is configured.
const DefaultDrainTimeout = 5 * time.Second

// Gateway is the long-running remote connection driven by the Coordinator.
type Gateway interface {
	// Connect authenticates with token and blocks until the connection ends or
	// ctx is cancelled. Authentication failures wrap ErrAuthentication.
	Connect(ctx context.Context, token string) error

	// Close releases the connection. Safe to call when already closed.
	Close() error
}

// Outcome classifies how a Run ended.
type Outcome int

const (
	// OutcomeShutdown means a shutdown was requested while connected.
	OutcomeShutdown Outcome = iota
	// OutcomeDisconnected means the connection ended on its own without error.
	OutcomeDisconnected
	// OutcomeAuthFailed means the remote service rejected the token.
	OutcomeAuthFailed
	// OutcomeRuntimeError means the connection failed for any other reason.
	OutcomeRuntimeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeShutdown:
		return "shutdown"
	case OutcomeDisconnected:
		return "disconnected"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeRuntimeError:
		return "runtime_error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the terminal state of a Run.
type Result struct {
	Outcome Outcome
	// Err is the connection error for OutcomeAuthFailed and OutcomeRuntimeError.
	Err error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDrainTimeout bounds how long the drain step waits for tasks.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.drainTimeout = d
	}
}

// WithAuthFailureHandler registers the action taken when the token is rejected,
// typically deleting the stored token so the next start prompts again.
func WithAuthFailureHandler(fn func(ctx context.Context) error) Option {
	return func(c *Coordinator) {
		c.onAuthFailure = fn
	}
}

// WithDrainHook registers fn to run when the drain step begins.
func WithDrainHook(fn func()) Option {
	return func(c *Coordinator) {
		c.onDrain = fn
	}
}

// WithSignals overrides the OS signals translated into a shutdown request.
// Passing none disables OS signal handling.
func WithSignals(signals ...os.Signal) Option {
	return func(c *Coordinator) {
		c.signals = signals
	}
}

// Coordinator runs a Gateway until it ends or shutdown is requested.
type Coordinator struct {
	shutdown      *ShutdownSignal
	tasks         *TaskGroup
	drainTimeout  time.Duration
	onAuthFailure func(ctx context.Context) error
	onDrain       func()
	signals       []os.Signal
}

// NewCoordinator creates a Coordinator reacting to shutdown and draining tasks.
func NewCoordinator(shutdown *ShutdownSignal, tasks *TaskGroup, opts ...Option) (*Coordinator, error) {
	if shutdown == nil {
		return nil, fmt.Errorf("missing shutdown signal")
	}
	if tasks == nil {
		return nil, fmt.Errorf("missing task group")
	}

	c := &Coordinator{
		shutdown:     shutdown,
		tasks:        tasks,
		drainTimeout: DefaultDrainTimeout,
		signals:      DefaultSignals,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run connects gw with token and blocks until the connection ends, the shutdown
// signal is set or ctx is cancelled. The drain step always runs before Run returns.
func (c *Coordinator) Run(ctx context.Context, gw Gateway, token string) Result {
	if len(c.signals) > 0 {
		stop := c.shutdown.NotifyOS(c.signals...)
		defer stop()
	}

	// Runs while the signal handler is still installed, so repeated interrupts are absorbed
	defer c.drain(gw)

	connCtx, cancelConn := context.WithCancel(c.tasks.Context())
	defer cancelConn()

	connDone := make(chan error, 1)
	started := c.tasks.Go("gateway", func(context.Context) error {
		err := gw.Connect(connCtx, token)
		connDone <- err
		return err
	})
	if !started {
		return Result{Outcome: OutcomeRuntimeError, Err: errors.New("task group already drained")}
	}

	slog.InfoContext(ctx, "starting gateway connection")

	select {
	case err := <-connDone:
		return c.classify(ctx, err)
	case <-c.shutdown.Done():
	case <-ctx.Done():
		c.shutdown.Set()
	}

	cancelConn()
	c.awaitCancelled(ctx, connDone)
	return Result{Outcome: OutcomeShutdown}
}

// awaitCancelled waits for the cancelled connection to acknowledge. A
// cancellation error is the expected answer and is not reported.
func (c *Coordinator) awaitCancelled(ctx context.Context, connDone <-chan error) {
	timer := time.NewTimer(c.drainTimeout)
	defer timer.Stop()

	select {
	case err := <-connDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.WarnContext(ctx, "gateway ended with error after shutdown request", "error", err)
		}
	case <-timer.C:
		slog.WarnContext(ctx, "gateway did not acknowledge cancellation in time", "timeout", c.drainTimeout)
	}
}

func (c *Coordinator) classify(ctx context.Context, err error) Result {
	switch {
	case err == nil || errors.Is(err, context.Canceled):
		slog.InfoContext(ctx, "gateway connection ended")
		return Result{Outcome: OutcomeDisconnected}

	case errors.Is(err, ErrAuthentication):
		slog.ErrorContext(ctx, "authentication failed - invalid token")
		if c.onAuthFailure != nil {
			if herr := c.onAuthFailure(ctx); herr != nil {
				slog.ErrorContext(ctx, "failed to invalidate stored token", "error", herr)
			}
		}
		return Result{Outcome: OutcomeAuthFailed, Err: err}

	default:
		slog.ErrorContext(ctx, "gateway runtime error", "error", err)
		return Result{Outcome: OutcomeRuntimeError, Err: err}
	}
}

// drain closes the gateway, then cancels and awaits all tracked tasks.
func (c *Coordinator) drain(gw Gateway) {
	ctx, cancel := context.WithTimeout(context.Background(), c.drainTimeout)
	defer cancel()

	slog.InfoContext(ctx, "initiating graceful shutdown")
	if c.onDrain != nil {
		c.onDrain()
	}

	if err := gw.Close(); err != nil {
		slog.WarnContext(ctx, "closing gateway failed", "error", err)
	}

	if n := c.tasks.Active(); n > 0 {
		slog.InfoContext(ctx, "cancelling remaining tasks", "count", n)
	}

	if err := c.tasks.Drain(ctx); err != nil {
		slog.ErrorContext(ctx, "background tasks did not stop in time",
			"remaining", c.tasks.Active(), "error", err)
		return
	}

	observability.OK(ctx, "shutdown complete")
}
