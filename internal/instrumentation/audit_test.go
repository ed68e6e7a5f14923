package instrumentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeAuditLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid audit line %q: %v", buf.String(), err)
	}
	return entry
}

func TestAuditLogger_AnonymizesByDefault(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: true})

	run := NewWorkflowRun(WorkflowSend, "owner-42")
	run.Recipient = "hr@acme.io"
	run.ApplicationID = "app-1"
	al.LogWorkflow(run.Complete(nil))

	entry := decodeAuditLine(t, &buf)
	if entry["msg"] != "workflow_completed" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["recipient_domain"] != "acme.io" {
		t.Errorf("expected recipient domain, got %v", entry["recipient_domain"])
	}
	if strings.Contains(buf.String(), "owner-42") || strings.Contains(buf.String(), "hr@acme.io") {
		t.Errorf("PII leaked into audit line: %s", buf.String())
	}
	if !strings.HasPrefix(entry["owner_hash"].(string), "user:") {
		t.Errorf("expected hashed owner, got %v", entry["owner_hash"])
	}
}

func TestAuditLogger_IncludePIIAndFailure(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: true, IncludePII: true})

	run := NewWorkflowRun(WorkflowSync, "owner-42")
	run.Processed = 3
	al.LogWorkflow(run.Complete(errors.New("credential error")))

	entry := decodeAuditLine(t, &buf)
	if entry["msg"] != "workflow_failed" || entry["level"] != "WARN" {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["owner"] != "owner-42" {
		t.Errorf("expected raw owner, got %v", entry["owner"])
	}
	if entry["processed"] != float64(3) {
		t.Errorf("expected processed=3, got %v", entry["processed"])
	}
	if run.Status() != StatusError {
		t.Errorf("expected error status, got %s", run.Status())
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogWorkflow(NewWorkflowRun(WorkflowLink, "o").Complete(nil))
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %s", buf.String())
	}

	var nilLogger *AuditLogger
	nilLogger.LogWorkflow(NewWorkflowRun(WorkflowLink, "o"))
}
