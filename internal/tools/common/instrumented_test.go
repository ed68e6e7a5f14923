package common

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/server"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestInstrumentedToolHandler(t *testing.T) {
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	require.NoError(t, err)

	tests := []struct {
		name       string
		result     *mcp.CallToolResult
		err        error
		wantStatus codes.Code
	}{
		{"success", mcp.NewToolResultText("ok"), nil, codes.Ok},
		{"error result", mcp.NewToolResultError("no recipient"), nil, codes.Error},
		{"handler error", nil, errors.New("boom"), codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := recordSpans(t)
			called := false
			wrapped := InstrumentedToolHandler("inbox_sync", metrics, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				called = true
				return tt.result, tt.err
			})

			result, err := wrapped(context.Background(), mcp.CallToolRequest{})
			assert.True(t, called)
			assert.Equal(t, tt.result, result)
			assert.Equal(t, tt.err, err)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "tool.inbox_sync", spans[0].Name())
			assert.Equal(t, tt.wantStatus, spans[0].Status().Code)
		})
	}
}

func TestInstrumentedToolHandler_NilMetrics(t *testing.T) {
	wrapped := InstrumentedToolHandler("inbox_sync", nil, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestOwnerResolver(t *testing.T) {
	r := OwnerResolver{Default: "cli-owner"}

	assert.Equal(t, "cli-owner", r.Owner(context.Background()))
	assert.Equal(t, "token-owner", r.Owner(server.WithOwner(context.Background(), "token-owner")))
	assert.Empty(t, OwnerResolver{}.Owner(context.Background()))
}
