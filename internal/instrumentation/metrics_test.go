package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) (*Provider, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "applytrack-test",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
		DetailedLabels:  true,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, ctx
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	provider, ctx := newTestProvider(t)
	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "POST", "/api/applications/send", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/inbox/sync", 502, 50*time.Millisecond)
}

func TestMetrics_RecordGoogleAPIOperation(t *testing.T) {
	provider, ctx := newTestProvider(t)
	metrics := provider.Metrics()

	metrics.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationList, StatusSuccess, 200*time.Millisecond)
	metrics.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationSend, StatusError, 500*time.Millisecond)
	metrics.RecordGoogleAPIOperation(ctx, ServiceOAuth, OperationRefresh, StatusSuccess, 100*time.Millisecond)
}

func TestMetrics_WorkflowCounters(t *testing.T) {
	provider, ctx := newTestProvider(t)
	metrics := provider.Metrics()

	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultSkipped)
	metrics.RecordAccountLink(ctx, OAuthResultFailure)
	metrics.RecordApplicationSent(ctx, StatusSuccess, "hr@example.com")
	metrics.RecordApplicationSent(ctx, StatusError, "")
	for _, outcome := range []string{SyncOutcomeMatched, SyncOutcomeUnmatched, SyncOutcomeSkipped, SyncOutcomeFailed} {
		metrics.RecordSyncMessage(ctx, outcome)
	}
	metrics.RecordSyncRun(ctx, StatusSuccess, 3*time.Second)
	metrics.RecordNotification(ctx, "amqp", NotifyResultDelivered)
	metrics.RecordNotification(ctx, "log", NotifyResultDropped)
	metrics.RecordToolInvocation(ctx, "inbox_sync", StatusSuccess, time.Second)
}

func TestMetrics_ZeroValueIsNoop(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	nilMetrics.RecordSyncMessage(ctx, SyncOutcomeMatched)
	nilMetrics.RecordApplicationSent(ctx, StatusSuccess, "a@b.c")

	empty := &Metrics{}
	empty.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
	empty.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationGet, StatusSuccess, time.Millisecond)
	empty.RecordNotification(ctx, "log", NotifyResultFailed)
}

func TestExtractUserDomain(t *testing.T) {
	tests := map[string]string{
		"jane@Example.com": "example.com",
		"user@gmail.com":   "gmail.com",
		"invalid":          "unknown",
		"":                 "unknown",
		"trailing@":        "unknown",
	}
	for in, want := range tests {
		if got := ExtractUserDomain(in); got != want {
			t.Errorf("ExtractUserDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
