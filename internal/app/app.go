package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/florianilch/devbadge/internal/bootstrap"
	"github.com/florianilch/devbadge/internal/gateway"
	"github.com/florianilch/devbadge/internal/keyderive"
	"github.com/florianilch/devbadge/internal/lifecycle"
	"github.com/florianilch/devbadge/internal/secretstore"
	"github.com/florianilch/devbadge/internal/status"
	"github.com/florianilch/devbadge/internal/tokenvault"
)

// ErrRuntime is wrapped by Start when the gateway connection fails for a
// reason other than authentication.
var ErrRuntime = errors.New("gateway runtime error")

// GatewayFactory creates the gateway connection for a run. Background work must
// be spawned through tasks.
type GatewayFactory func(tasks *lifecycle.TaskGroup) (lifecycle.Gateway, error)

// Option configures an App.
type Option func(*App)

// WithPrompter replaces the terminal prompt.
func WithPrompter(p bootstrap.Prompter) Option {
	return func(a *App) {
		a.prompter = p
	}
}

// WithGatewayFactory replaces the Discord gateway.
func WithGatewayFactory(f GatewayFactory) Option {
	return func(a *App) {
		a.newGateway = f
	}
}

// WithLifecycleOptions appends options for the run-phase coordinator.
func WithLifecycleOptions(opts ...lifecycle.Option) Option {
	return func(a *App) {
		a.lifecycleOpts = append(a.lifecycleOpts, opts...)
	}
}

// App orchestrates credential bootstrap, the gateway run and shutdown.
type App struct {
	cfg     *Config
	secrets secretstore.Store
	tokens  *secretstore.FileStore
	vault   *tokenvault.Vault
	tracker *status.Tracker

	prompter      bootstrap.Prompter
	newGateway    GatewayFactory
	lifecycleOpts []lifecycle.Option
}

// New creates a new App instance. No credentials are read until Start.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	secrets, err := cfg.Secret.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret store: %w", err)
	}

	tokens, err := cfg.Token.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	deriver, err := keyderive.New(cfg.KDF.Profile, cfg.KDF.Iterations)
	if err != nil {
		return nil, fmt.Errorf("failed to create key deriver: %w", err)
	}

	vault, err := tokenvault.New(deriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create token vault: %w", err)
	}

	a := &App{
		cfg:      cfg,
		secrets:  secrets,
		tokens:   tokens,
		vault:    vault,
		tracker:  status.NewTracker(),
		prompter: bootstrap.NewTerminalPrompter(os.Stdin, os.Stderr),
	}
	a.newGateway = a.discordGateway
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Start resolves the token, runs the gateway until it ends or shutdown is
// requested, and stops all services. Returns nil on a requested shutdown or a
// clean disconnect, an error wrapping lifecycle.ErrAuthentication when the token
// was rejected, and an error wrapping ErrRuntime for other connection failures.
func (a *App) Start(ctx context.Context) (err error) {
	var shutdownFuncs []func(context.Context) error

	// Shutdown phase: Stop auxiliary services regardless of how the run ended
	defer func() {
		a.tracker.Set(status.PhaseStopped)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
		defer cancel()

		errs := []error{err}
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			if serr := shutdownFuncs[i](shutdownCtx); serr != nil {
				slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", serr)
				errs = append(errs, serr)
			}
		}
		err = errors.Join(errs...)
	}()

	if a.cfg.Status.Enabled {
		shutdown, err := a.startStatus(ctx)
		if err != nil {
			return err
		}
		shutdownFuncs = append(shutdownFuncs, shutdown)
	}

	// Startup phase: resolve credentials
	b, err := bootstrap.New(a.secrets, a.tokens, a.vault, a.prompter)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap: %w", err)
	}

	token, err := b.Run(ctx)
	if err != nil {
		return fmt.Errorf("credential bootstrap failed: %w", err)
	}

	// Run phase
	tasks := lifecycle.NewTaskGroup(ctx)

	gw, err := a.newGateway(tasks)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	opts := append([]lifecycle.Option{
		lifecycle.WithDrainTimeout(a.cfg.Shutdown.Timeout),
		lifecycle.WithAuthFailureHandler(a.tokens.Delete),
		lifecycle.WithDrainHook(func() { a.tracker.Set(status.PhaseDraining) }),
	}, a.lifecycleOpts...)

	coordinator, err := lifecycle.NewCoordinator(lifecycle.NewShutdownSignal(), tasks, opts...)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	a.tracker.Set(status.PhaseConnecting)
	result := coordinator.Run(ctx, gw, token)

	slog.InfoContext(ctx, "run finished", "outcome", result.Outcome)

	switch result.Outcome {
	case lifecycle.OutcomeAuthFailed:
		return fmt.Errorf("stored token invalidated: %w", result.Err)
	case lifecycle.OutcomeRuntimeError:
		return fmt.Errorf("%w: %w", ErrRuntime, result.Err)
	default:
		return nil
	}
}

// Reset deletes the stored token, and the secret as well when withSecret is
// set, so the next start runs the first-time setup.
func (a *App) Reset(ctx context.Context, withSecret bool) error {
	if err := a.tokens.Delete(ctx); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	slog.InfoContext(ctx, "stored token removed", "path", a.tokens.Path())

	if withSecret {
		if err := a.secrets.Delete(ctx); err != nil {
			return fmt.Errorf("deleting secret: %w", err)
		}
		slog.InfoContext(ctx, "local secret removed", "storage", a.cfg.Secret.Storage)
	}
	return nil
}

// startStatus starts the health endpoint and monitors it for runtime errors.
func (a *App) startStatus(ctx context.Context) (func(context.Context) error, error) {
	srv, err := status.New(a.tracker)
	if err != nil {
		return nil, fmt.Errorf("failed to create status server: %w", err)
	}

	slog.InfoContext(ctx, "starting status server", "address", a.cfg.Status.Address)
	errCh, err := srv.Start(ctx, a.cfg.Status.Address)
	if err != nil {
		return nil, fmt.Errorf("status server startup failed: %w", err)
	}

	// The status endpoint is auxiliary; a failure is reported but does not stop the bot
	go func() {
		for err := range errCh {
			slog.ErrorContext(ctx, "status server runtime error", "error", err)
		}
	}()

	return srv.Shutdown, nil
}

func (a *App) discordGateway(tasks *lifecycle.TaskGroup) (lifecycle.Gateway, error) {
	return gateway.New(tasks,
		gateway.WithGuildID(a.cfg.Gateway.GuildID),
		gateway.WithMessageContent(*a.cfg.Gateway.MessageContent),
		gateway.WithReadyHook(func() {
			a.tracker.Advance(status.PhaseConnecting, status.PhaseConnected)
		}),
	)
}
