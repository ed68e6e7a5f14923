package gmail

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/applytrack/internal/model"
)

// Normalize converts a full-format Gmail message into an InboundMessage.
// The body is the first text/plain part, falling back to the first
// text/html part.
func Normalize(msg *gmail.Message) *model.InboundMessage {
	in := &model.InboundMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.Payload == nil {
		in.Date = internalDate(msg.InternalDate)
		return in
	}

	in.From = header(msg.Payload.Headers, "From")
	in.To = header(msg.Payload.Headers, "To")
	in.Subject = header(msg.Payload.Headers, "Subject")
	if d, err := mail.ParseDate(header(msg.Payload.Headers, "Date")); err == nil {
		in.Date = d.UTC()
	} else {
		in.Date = internalDate(msg.InternalDate)
	}

	if body, ok := findBody(msg.Payload, "text/plain"); ok {
		in.Body = body
	} else if body, ok := findBody(msg.Payload, "text/html"); ok {
		in.Body = body
	}
	return in
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// findBody walks the part tree depth first.
func findBody(part *gmail.MessagePart, mimeType string) (string, bool) {
	if part == nil {
		return "", false
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if data, err := decodeData(part.Body.Data); err == nil {
			return string(data), true
		}
	}
	for _, p := range part.Parts {
		if body, ok := findBody(p, mimeType); ok {
			return body, true
		}
	}
	return "", false
}

// decodeData accepts base64url with or without padding.
func decodeData(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func internalDate(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
