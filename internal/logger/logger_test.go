package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	require.NotNil(t, logger)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	assert.Empty(t, TraceID(ctx))

	ctx = WithTraceID(ctx, "test-trace-123")
	assert.Equal(t, "test-trace-123", TraceID(ctx))
}

func TestNewTraceID(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	// No trace ID
	assert.Nil(t, LogWithTrace(ctx))

	// With trace ID returns [slog.Attr] which is a single element
	ctx = WithTraceID(ctx, "abc-123")
	attrs := LogWithTrace(ctx)
	require.Len(t, attrs, 1)
	attr, ok := attrs[0].(slog.Attr)
	require.True(t, ok)
	assert.True(t, attr.Equal(slog.String("trace_id", "abc-123")))
}
