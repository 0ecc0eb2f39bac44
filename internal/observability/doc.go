// Package observability configures the process-wide slog logger.
//
// Three output formats are supported:
//   - text: human readable lines on stdout (default)
//   - json: one JSON object per line on stdout
//   - otel: OpenTelemetry log records, exported via OTLP when
//     OTEL_EXPORTER_OTLP_ENDPOINT is set and to stdout otherwise
//
// Besides the standard slog levels an additional LevelOK sits between INFO
// and WARN and marks successfully completed steps.
package observability
