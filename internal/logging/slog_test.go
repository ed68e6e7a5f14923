package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", "debug")
	logger.Debug("hello", Credential("cred-1"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "cred-1", entry[KeyCredential])

	buf.Reset()
	logger = NewLogger(&buf, "text", "warn")
	logger.Info("dropped")
	assert.Empty(t, buf.String())
	logger.Warn("kept")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestAttrKeys(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		key  string
		val  string
	}{
		{"operation", Operation("inbox.sync"), KeyOperation, "inbox.sync"},
		{"credential", Credential("c1"), KeyCredential, "c1"},
		{"message", MessageID("m1"), KeyMessageID, "m1"},
		{"application", Application("a1"), KeyApplication, "a1"},
		{"tool", Tool("inbox_sync"), KeyTool, "inbox_sync"},
		{"status", Status(StatusSuccess), KeyStatus, "success"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.val, tt.attr.Value.String())
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("ok", Err(nil))
	assert.NotContains(t, buf.String(), KeyError)
}

func TestAnonymize(t *testing.T) {
	assert.Equal(t, "", Anonymize(""))

	hashed := Anonymize("owner-123")
	assert.True(t, strings.HasPrefix(hashed, "user:"))
	assert.Len(t, hashed, len("user:")+16)
	assert.NotContains(t, hashed, "owner-123")
	assert.Equal(t, hashed, Anonymize("owner-123"))

	assert.Equal(t, AnonymizeEmail("Jane@Example.com"), AnonymizeEmail(" jane@example.com"))
}

func TestOwnerHash(t *testing.T) {
	attr := OwnerHash("owner-1")
	assert.Equal(t, KeyOwnerHash, attr.Key)
	assert.Equal(t, Anonymize("owner-1"), attr.Value.String())
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))
	assert.Equal(t, "[token:10 chars]", SanitizeToken("ya29.abcde"))
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "example.com", ExtractDomain("hr@Example.com"))
	assert.Equal(t, "", ExtractDomain("not-an-email"))
	assert.Equal(t, "", ExtractDomain(""))
	assert.Equal(t, "recipient_domain", Domain("a@b.io").Key)
}
