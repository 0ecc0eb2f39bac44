package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Supported log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatOTel = "otel"
)

const instrumentationName = "github.com/florianilch/devbadge"

// ShutdownFunc flushes buffered log records. Safe to call for every format.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger for the given level and format.
// attrs are attached to every record (e.g. a run identifier).
func Instrument(ctx context.Context, level slog.Level, format string, attrs ...slog.Attr) (ShutdownFunc, error) {
	handler, shutdown, err := newHandler(ctx, os.Stdout, level, format)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(handler.WithAttrs(attrs)))
	return shutdown, nil
}

func newHandler(ctx context.Context, w io.Writer, level slog.Level, format string) (slog.Handler, ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}

	switch format {
	case FormatText, "":
		return slog.NewTextHandler(w, opts), noop, nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), noop, nil
	case FormatOTel:
		provider, err := newLoggerProvider(ctx, w, level)
		if err != nil {
			return nil, nil, err
		}
		handler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
		return handler, provider.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

// newLoggerProvider builds an OpenTelemetry LoggerProvider. OTLP is used when an
// endpoint is configured through the standard OTEL_EXPORTER_OTLP_* variables.
func newLoggerProvider(ctx context.Context, w io.Writer, level slog.Level) (*sdklog.LoggerProvider, error) {
	// Exporter errors must not go through slog, which may be routed back into the exporter
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		_, _ = fmt.Fprintf(os.Stderr, "opentelemetry: %v\n", err)
	}))

	exporter, err := newExporter(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("creating log exporter: %w", err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

func newExporter(ctx context.Context, w io.Writer) (sdklog.Exporter, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" {
		return stdoutlog.New(stdoutlog.WithWriter(w))
	}

	switch os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") {
	case "grpc":
		return otlploggrpc.New(ctx)
	default:
		return otlploghttp.New(ctx)
	}
}
