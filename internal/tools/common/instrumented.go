package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/applytrack/internal/instrumentation"
)

// ToolHandler is the signature mcp-go expects for tool handlers.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a span and invocation
// metrics. Tool results flagged IsError count as errors.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", metrics, handler))
func InstrumentedToolHandler(toolName string, metrics *instrumentation.Metrics, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)

		result, err := handler(ctx, request)

		status := instrumentation.StatusSuccess
		spanErr := err
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			if spanErr == nil {
				spanErr = errors.New("tool returned an error result")
			}
		}
		instrumentation.EndSpan(span, spanErr)
		metrics.RecordToolInvocation(ctx, toolName, status, time.Since(start))

		return result, err
	}
}
