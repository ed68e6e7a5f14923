package instrumentation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Workflow names recorded in the audit log.
const (
	WorkflowSend   = "application.send"
	WorkflowSync   = "inbox.sync"
	WorkflowLink   = "account.link"
	WorkflowUnlink = "account.unlink"
)

// WorkflowRun captures one invocation of a user-visible workflow for the
// audit trail.
//
// # Privacy Considerations
//
// Owner and Recipient are PII. They are hashed unless the audit logger is
// configured with IncludePII.
type WorkflowRun struct {
	Workflow string

	Owner        string
	CredentialID string
	Recipient    string // send only

	// Outcome details
	ApplicationID string
	MessageID     string
	Processed     int // sync only
	Matched       int // sync only

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewWorkflowRun creates a new WorkflowRun with timing started.
// Call Complete() when the workflow finishes.
func NewWorkflowRun(workflow, owner string) *WorkflowRun {
	return &WorkflowRun{
		Workflow:  workflow,
		Owner:     owner,
		StartTime: time.Now(),
	}
}

// WithSpanContext extracts trace context from the current span.
func (wr *WorkflowRun) WithSpanContext(ctx context.Context) *WorkflowRun {
	wr.TraceID = GetTraceID(ctx)
	wr.SpanID = GetSpanID(ctx)
	return wr
}

// Complete marks the run as completed and calculates duration.
func (wr *WorkflowRun) Complete(err error) *WorkflowRun {
	wr.Duration = time.Since(wr.StartTime)
	wr.Success = err == nil
	if err != nil {
		wr.Error = err.Error()
	}
	return wr
}

// Status returns "success" or "error" based on the Success field.
func (wr *WorkflowRun) Status() string {
	if wr.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for the run. With includePII false the
// owner id is hashed and only the recipient domain is kept.
func (wr *WorkflowRun) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("workflow", wr.Workflow),
		slog.Duration("duration", wr.Duration),
		slog.Bool("success", wr.Success),
	}

	if includePII {
		attrs = append(attrs, slog.String("owner", wr.Owner))
		if wr.Recipient != "" {
			attrs = append(attrs, slog.String("recipient", wr.Recipient))
		}
	} else {
		attrs = append(attrs, slog.String("owner_hash", hashIdentifier(wr.Owner)))
		if wr.Recipient != "" {
			attrs = append(attrs, slog.String("recipient_domain", ExtractUserDomain(wr.Recipient)))
		}
	}

	if wr.CredentialID != "" {
		attrs = append(attrs, slog.String("credential", wr.CredentialID))
	}
	if wr.ApplicationID != "" {
		attrs = append(attrs, slog.String("application", wr.ApplicationID))
	}
	if wr.MessageID != "" {
		attrs = append(attrs, slog.String("message_id", wr.MessageID))
	}
	if wr.Workflow == WorkflowSync {
		attrs = append(attrs, slog.Int("processed", wr.Processed), slog.Int("matched", wr.Matched))
	}
	if wr.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", wr.TraceID))
	}
	if wr.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", wr.SpanID))
	}
	if wr.Error != "" {
		attrs = append(attrs, slog.String("error", wr.Error))
	}

	return attrs
}

// hashIdentifier matches logging.Anonymize; instrumentation cannot import
// logging without a cycle.
func hashIdentifier(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return "user:" + hex.EncodeToString(hash[:8])
}

// AuditLogger writes workflow runs to a dedicated slog logger.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger with the given configuration.
// A nil logger means slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogWorkflow writes one audit line for wr. Nil receivers are no-ops.
func (al *AuditLogger) LogWorkflow(wr *WorkflowRun) {
	if al == nil || !al.enabled || wr == nil {
		return
	}

	attrs := wr.LogAttrs(al.includePII)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if wr.Success {
		al.logger.Info("workflow_completed", args...)
	} else {
		al.logger.Warn("workflow_failed", args...)
	}
}
