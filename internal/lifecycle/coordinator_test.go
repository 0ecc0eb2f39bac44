package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway delegates Connect to a test-provided function and counts Close calls.
type fakeGateway struct {
	connect func(ctx context.Context, token string) error
	closed  atomic.Int32
	token   atomic.Pointer[string]
}

func (g *fakeGateway) Connect(ctx context.Context, token string) error {
	g.token.Store(&token)
	return g.connect(ctx, token)
}

func (g *fakeGateway) Close() error {
	g.closed.Add(1)
	return nil
}

// blockUntilCancelled never resolves on its own.
func blockUntilCancelled(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *ShutdownSignal, *TaskGroup) {
	t.Helper()

	shutdown := NewShutdownSignal()
	tasks := NewTaskGroup(context.Background())
	opts = append([]Option{WithSignals(), WithDrainTimeout(2 * time.Second)}, opts...)

	c, err := NewCoordinator(shutdown, tasks, opts...)
	require.NoError(t, err)
	return c, shutdown, tasks
}

// runAsync runs the coordinator and fails the test if it does not return in time.
func runAsync(t *testing.T, ctx context.Context, c *Coordinator, gw Gateway) Result {
	t.Helper()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- c.Run(ctx, gw, "token-value")
	}()

	select {
	case result := <-resultCh:
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not return in time")
		return Result{}
	}
}

func TestRun_ShutdownCancelsConnection(t *testing.T) {
	var drained atomic.Bool
	c, shutdown, tasks := newTestCoordinator(t, WithDrainHook(func() { drained.Store(true) }))
	gw := &fakeGateway{connect: blockUntilCancelled}

	// background work unrelated to the connection must be drained too
	workerStopped := make(chan struct{})
	tasks.Go("worker", func(ctx context.Context) error {
		defer close(workerStopped)
		<-ctx.Done()
		return ctx.Err()
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		shutdown.Set()
	}()

	result := runAsync(t, context.Background(), c, gw)

	assert.Equal(t, OutcomeShutdown, result.Outcome)
	assert.NoError(t, result.Err)
	assert.Equal(t, 0, tasks.Active())
	assert.EqualValues(t, 1, gw.closed.Load())
	assert.Equal(t, "token-value", *gw.token.Load())
	assert.True(t, drained.Load())

	select {
	case <-workerStopped:
	default:
		t.Fatal("background worker still running after Run returned")
	}

	// handlers firing after Run must not start untracked work
	ran := false
	assert.False(t, tasks.Go("late interaction", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.False(t, ran)
	assert.Equal(t, 0, tasks.Active())
}

func TestRun_ContextCancellationRequestsShutdown(t *testing.T) {
	c, shutdown, tasks := newTestCoordinator(t)
	gw := &fakeGateway{connect: blockUntilCancelled}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := runAsync(t, ctx, c, gw)

	assert.Equal(t, OutcomeShutdown, result.Outcome)
	assert.True(t, shutdown.IsSet())
	assert.Equal(t, 0, tasks.Active())
}

func TestRun_ClassifiesConnectionOutcome(t *testing.T) {
	runtimeErr := errors.New("gateway closed with code 4000")

	tests := []struct {
		name        string
		connectErr  error
		outcome     Outcome
		invalidated bool
	}{
		{
			name:    "clean disconnect",
			outcome: OutcomeDisconnected,
		},
		{
			name:       "cancellation is not an error",
			connectErr: context.Canceled,
			outcome:    OutcomeDisconnected,
		},
		{
			name:        "authentication failure invalidates token",
			connectErr:  fmt.Errorf("%w: 401 Unauthorized", ErrAuthentication),
			outcome:     OutcomeAuthFailed,
			invalidated: true,
		},
		{
			name:       "other errors are runtime errors",
			connectErr: runtimeErr,
			outcome:    OutcomeRuntimeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var invalidated atomic.Bool
			c, _, tasks := newTestCoordinator(t, WithAuthFailureHandler(func(context.Context) error {
				invalidated.Store(true)
				return nil
			}))
			gw := &fakeGateway{connect: func(context.Context, string) error {
				return tt.connectErr
			}}

			result := runAsync(t, context.Background(), c, gw)

			assert.Equal(t, tt.outcome, result.Outcome)
			assert.Equal(t, tt.invalidated, invalidated.Load())
			if tt.outcome == OutcomeAuthFailed || tt.outcome == OutcomeRuntimeError {
				assert.ErrorIs(t, result.Err, tt.connectErr)
			} else {
				assert.NoError(t, result.Err)
			}
			assert.Equal(t, 0, tasks.Active())
			assert.EqualValues(t, 1, gw.closed.Load())
		})
	}
}

func TestRun_UnresponsiveGatewayIsBounded(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	c, shutdown, _ := newTestCoordinator(t, WithDrainTimeout(50*time.Millisecond))
	gw := &fakeGateway{connect: func(context.Context, string) error {
		<-release
		return nil
	}}
	shutdown.Set()

	start := time.Now()
	result := runAsync(t, context.Background(), c, gw)

	assert.Equal(t, OutcomeShutdown, result.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewCoordinator_RequiresDependencies(t *testing.T) {
	_, err := NewCoordinator(nil, NewTaskGroup(context.Background()))
	assert.Error(t, err)

	_, err = NewCoordinator(NewShutdownSignal(), nil)
	assert.Error(t, err)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "auth_failed", OutcomeAuthFailed.String())
	assert.Equal(t, "Outcome(42)", Outcome(42).String())
}
