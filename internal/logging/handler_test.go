// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/authgate/authgate/pkg/errutil"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "not JSON: %s", buf.String())
	return entry
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "authgate", Version: "1.0.0", Writer: &buf})
	require.NoError(t, err)

	logger.Info("user registered", "user_id", "01J")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "user registered", entry["msg"])
	assert.Equal(t, "authgate", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "01J", entry["user_id"])
	assert.NotContains(t, entry, "trace_id")
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "authgate", Format: FormatText, Writer: &buf})
	require.NoError(t, err)

	logger.Info("login")

	assert.Contains(t, buf.String(), "msg=login")
	assert.Contains(t, buf.String(), "service=authgate")
}

func TestNew_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "authgate", Writer: &buf})
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.With("component", "web").InfoContext(ctx, "traced")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "web", entry["component"])
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	errutil.AssertErrorCode(t, err, "LOG_INVALID_FORMAT")

	_, err = New(Options{Level: "loud"})
	errutil.AssertErrorCode(t, err, "LOG_INVALID_LEVEL")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	logger, err := SetDefault(Options{Service: "authgate"})
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())
}
