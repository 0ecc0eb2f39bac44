package observability

import (
	"context"
	"log/slog"

	otellog "go.opentelemetry.io/otel/log"
)

// LevelOK reports a successfully completed step.
const LevelOK = slog.LevelInfo + 2

// OK logs at LevelOK using the default logger.
func OK(ctx context.Context, msg string, args ...any) {
	slog.Log(ctx, LevelOK, msg, args...)
}

// levelName renders LevelOK as "OK" and defers to slog for everything else.
func levelName(level slog.Level) string {
	if level == LevelOK {
		return "OK"
	}
	return level.String()
}

// replaceLevel is a slog.HandlerOptions.ReplaceAttr hook that applies levelName.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(level))
		}
	}
	return a
}

// severity adapts a slog level to the OpenTelemetry severity scale using the
// same offset as the otelslog bridge.
type severity slog.Level

func (s severity) Severity() otellog.Severity {
	return otellog.Severity(slog.Level(s) + 9)
}
