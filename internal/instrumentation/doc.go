// Package instrumentation provides OpenTelemetry metrics, tracing and the
// workflow audit log for applytrack.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// OAuth Metrics:
//   - oauth_account_link_total: Counter of mailbox linking attempts by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Workflow Metrics:
//   - applications_sent_total: Counter of send workflows by status
//   - inbox_sync_messages_total: Counter of candidate messages by outcome
//   - inbox_sync_duration_seconds: Histogram of sync run durations
//   - notifications_total: Counter of owner notifications by sink and result
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for workflows (workflow.<name>), MCP tools (tool.<name>)
// and Google API calls (google.<service>.<operation>).
//
// # Configuration
//
// DefaultConfig reads the standard variables (OTEL_SERVICE_NAME,
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG) plus
// INSTRUMENTATION_ENABLED, METRICS_EXPORTER and TRACING_EXPORTER. The
// application config layer may override every field.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordSyncMessage(ctx, instrumentation.SyncOutcomeMatched)
package instrumentation
