// Package obs builds the logger and TracerProvider shared by the cmd/
// tools, following the teacher's createLogger/initTracerProvider split in
// cmd/server/main.go. Unlike the teacher this module has no out-of-process
// trace collector to ship spans to, so the only exporters wired here are
// stdout and a no-op (see DESIGN.md for why the otlptrace* exporters are
// not imported).
package obs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/e57io/e57cv/config"
)

func newStdoutExporter() (sdktrace.SpanExporter, error) {
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

// NewLogger builds a structured logger per cfg: JSON in production
// (output=file), plain text to stdout for local/dev, mirroring how the
// teacher's cmd/ selects a handler from LoggingConfig.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = f
		closer = f
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	var handler slog.Handler
	if cfg.Output == "file" {
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler), closer, nil
}

// NewTracerProvider builds a TracerProvider per cfg. Disabled tracing, or
// the "none"/empty exporter, yields a provider with no exporter; "stdout"
// writes span JSON to standard output so a developer can see span timing
// without standing up a collector. Any other exporter name is an error.
func NewTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (trace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	var opts []sdktrace.TracerProviderOption
	switch strings.ToLower(cfg.Exporter) {
	case "stdout":
		exp, err := newStdoutExporter()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "none", "":
		// no exporter: spans are sampled and dropped, useful for exercising
		// the tracing code paths without writing anything out.
	default:
		return nil, nil, fmt.Errorf("unsupported tracing exporter: %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("tracer provider shutdown failed", "error", err)
		}
	}
	return tp, cleanup, nil
}
