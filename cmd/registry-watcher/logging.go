package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"

	"github.com/stacklok/registry-watcher/internal/config"
)

// logSettings are read from REGISTRY_WATCHER_LOG_LEVEL and REGISTRY_WATCHER_LOG_FORMAT,
// with LOG_LEVEL and LOG_FORMAT as fallbacks
type logSettings struct {
	level slog.Level
	text  bool
}

// readLogSettings defaults to text output on a terminal and JSON otherwise
func readLogSettings(terminal bool) logSettings {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	lookup := func(key string) string {
		if value := v.GetString(key); value != "" {
			return value
		}
		return os.Getenv(strings.ToUpper(key))
	}

	settings := logSettings{level: slog.LevelInfo, text: terminal}

	if raw := strings.TrimSpace(lookup("log_level")); raw != "" {
		if strings.EqualFold(raw, "warning") {
			raw = "warn"
		}
		if err := settings.level.UnmarshalText([]byte(raw)); err != nil {
			settings.level = slog.LevelInfo
			slog.Warn("Ignoring invalid log level", "value", raw)
		}
	}

	switch format := strings.ToLower(lookup("log_format")); format {
	case "":
	case "json":
		settings.text = false
	case "text":
		settings.text = true
	default:
		slog.Warn("Ignoring invalid log format", "value", format)
	}

	return settings
}

// setupLogging installs the default logger writing to f
func setupLogging(f *os.File) {
	settings := readLogSettings(term.IsTerminal(int(f.Fd())))
	slog.SetDefault(slog.New(newLogHandler(f, settings)))
}

func newLogHandler(w io.Writer, settings logSettings) slog.Handler {
	opts := &slog.HandlerOptions{Level: settings.level}
	if settings.text {
		return spanContextHandler{slog.NewTextHandler(w, opts)}
	}
	return spanContextHandler{slog.NewJSONHandler(w, opts)}
}

// spanContextHandler adds trace_id and span_id of the active span, so log lines
// of a polling cycle can be found from its trace
type spanContextHandler struct {
	next slog.Handler
}

func (h spanContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h spanContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h spanContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return spanContextHandler{h.next.WithAttrs(attrs)}
}

func (h spanContextHandler) WithGroup(name string) slog.Handler {
	return spanContextHandler{h.next.WithGroup(name)}
}
