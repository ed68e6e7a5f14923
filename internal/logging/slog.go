package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation   = "operation"
	KeyOwnerHash   = "owner_hash"
	KeyCredential  = "credential"
	KeyMessageID   = "message_id"
	KeyApplication = "application"
	KeyDuration    = "duration"
	KeyStatus      = "status"
	KeyError       = "error"
	KeyTool        = "tool"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NewLogger builds the process logger. format is "text" or "json",
// level is one of debug, info, warn, error (anything else means info).
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(Operation(operation))
}

// WithOwner returns a logger carrying the hashed owner id.
func WithOwner(logger *slog.Logger, owner string) *slog.Logger {
	return logger.With(OwnerHash(owner))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Credential returns a slog attribute for a credential record id.
func Credential(id string) slog.Attr {
	return slog.String(KeyCredential, id)
}

// MessageID returns a slog attribute for a provider message id.
func MessageID(id string) slog.Attr {
	return slog.String(KeyMessageID, id)
}

// Application returns a slog attribute for an application record id.
func Application(id string) slog.Attr {
	return slog.String(KeyApplication, id)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// Anonymize returns a hashed representation of an identifier (owner id or
// email address) for logging purposes. This allows correlation of log
// entries without exposing PII.
func Anonymize(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return "user:" + hex.EncodeToString(hash[:8])
}

// AnonymizeEmail is Anonymize applied to a normalized email address.
func AnonymizeEmail(email string) string {
	return Anonymize(strings.ToLower(strings.TrimSpace(email)))
}

// OwnerHash returns a slog attribute with the anonymized owner id.
//
// Usage:
//
//	logger.Info("sync finished", logging.OwnerHash(owner))
func OwnerHash(owner string) slog.Attr {
	return slog.String(KeyOwnerHash, Anonymize(owner))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes (like JWT headers) can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain extracts the domain part from an email address.
// This is useful for lower-cardinality logging where the full email would
// create too many unique values.
func ExtractDomain(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// Domain returns a slog attribute for the recipient domain (lower cardinality than full email).
func Domain(email string) slog.Attr {
	return slog.String("recipient_domain", ExtractDomain(email))
}
