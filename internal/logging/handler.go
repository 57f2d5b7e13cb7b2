// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package logging builds the service's slog logger. Records carry the
// service name and version, plus trace and span ids when the context holds
// an OpenTelemetry span.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Log formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options configures New.
type Options struct {
	Service string
	Version string
	Format  string // FormatJSON (default) or FormatText
	Level   string // debug, info (default), warn, error
	Writer  io.Writer
}

// traceHandler adds trace_id and span_id from the record's context.
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, oops.Code("LOG_INVALID_LEVEL").With("level", name).Errorf("unknown log level %q", name)
	}
}

// New creates a logger writing to opts.Writer, or os.Stderr when nil.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	switch opts.Format {
	case "", FormatJSON:
		base = slog.NewJSONHandler(w, handlerOpts)
	case FormatText:
		base = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, oops.Code("LOG_INVALID_FORMAT").
			With("format", opts.Format).
			Errorf("log format must be %q or %q", FormatJSON, FormatText)
	}

	base = base.WithAttrs([]slog.Attr{
		slog.String("service", opts.Service),
		slog.String("version", opts.Version),
	})
	return slog.New(traceHandler{base}), nil
}

// SetDefault builds a logger with New and installs it as slog's default.
func SetDefault(opts Options) (*slog.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
