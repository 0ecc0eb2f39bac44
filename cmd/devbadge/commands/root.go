package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/devbadge/internal/app"
	"github.com/florianilch/devbadge/internal/lifecycle"
	"github.com/florianilch/devbadge/internal/observability"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitAuthFailed = 2
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "devbadge",
		Usage: "Discord Active Developer Badge bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "secret--storage",
				Usage: "where the local secret is kept (file|env|keyring)",
				Value: string(app.DefaultConfigSecretStorage),
			},
			&cli.StringFlag{
				Name:  "secret--file",
				Usage: "secret file path (file storage)",
				Value: app.DefaultConfigSecretFile,
			},
			&cli.StringFlag{
				Name:  "secret--env-key",
				Usage: "environment variable holding the secret (env storage)",
			},
			&cli.StringFlag{
				Name:  "token--file",
				Usage: "encrypted token file path",
				Value: app.DefaultConfigTokenFile,
			},
		},
		// Exit codes are applied by main after logs are flushed
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			startCommand(),
			resetCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "resolve the bot token and connect to the gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kdf--profile",
				Usage: "key derivation profile (legacy|pbkdf2|scrypt)",
				Value: string(app.DefaultConfigKDFProfile),
			},
			&cli.IntFlag{
				Name:  "kdf--iterations",
				Usage: "pbkdf2 iteration count",
				Value: app.DefaultConfigKDFIterations,
			},
			&cli.StringFlag{
				Name:  "gateway--guild-id",
				Usage: "register commands in this guild only",
			},
			&cli.DurationFlag{
				Name:  "shutdown--timeout",
				Usage: "upper bound for draining background work",
				Value: app.DefaultConfigShutdownTimeout,
			},
			&cli.BoolFlag{
				Name:  "status--enabled",
				Usage: "serve GET /healthz",
			},
			&cli.StringFlag{
				Name:  "status--address",
				Usage: "status server address",
				Value: app.DefaultConfigStatusAddress,
			},
		},
		Action: startAction,
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "delete the stored token so the next start prompts again",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "with-secret",
				Usage: "also delete the local secret",
			},
		},
		Action: resetAction,
	}
}

// setup loads configuration, installs logging and creates the app.
// The returned func flushes logs and must be called before exiting.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownLogs, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat),
		slog.String("run_id", uuid.NewString()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	flush := func() {
		if err := shutdownLogs(context.WithoutCancel(ctx)); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
		}
	}

	application, err := app.New(cfg)
	if err != nil {
		flush()
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	return application, flush, nil
}

func startAction(ctx context.Context, cmd *cli.Command) error {
	application, flush, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer flush()
	defer observability.OK(ctx, "application terminated")

	slog.InfoContext(ctx, "starting")

	err = application.Start(ctx)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "stopped gracefully")
		return nil
	case errors.Is(err, lifecycle.ErrAuthentication):
		slog.ErrorContext(ctx, "stopped after authentication failure", "error", err)
		return cli.Exit("", ExitAuthFailed)
	default:
		slog.ErrorContext(ctx, "stopped with error", "error", err)
		return cli.Exit("", ExitFailure)
	}
}

func resetAction(ctx context.Context, cmd *cli.Command) error {
	application, flush, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer flush()

	if err := application.Reset(ctx, cmd.Bool("with-secret")); err != nil {
		slog.ErrorContext(ctx, "reset failed", "error", err)
		return cli.Exit("", ExitFailure)
	}

	observability.OK(ctx, "reset complete")
	return nil
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return ExitFailure
}
