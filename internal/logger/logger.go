// Package logger sets up zerolog with service-level context and provides
// trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates the logger for the given service and installs it as the
// zerolog global. Output is JSON on stdout unless format is "console".
// An unparsable level falls back to info.
func Init(service, level, format string) zerolog.Logger {
	return New(os.Stdout, service, level, format)
}

// New is Init with an explicit writer.
func New(w io.Writer, service, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	log := zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Logger()
	zerolog.DefaultContextLogger = &log
	return log
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a token and timestamp.
// Format: "{token}-{unixNano}".
func GenerateTraceID(token string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", token, ts.UnixNano())
}

// Ctx returns base with the context's trace ID attached, if any.
func Ctx(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	tid := TraceID(ctx)
	if tid == "" {
		return base
	}
	return base.With().Str("trace_id", tid).Logger()
}
