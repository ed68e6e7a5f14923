package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/model"
)

// DefaultAttachmentName is used when the message names no attachment.
const DefaultAttachmentName = "resume.pdf"

var recipientPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// ValidRecipient reports whether addr looks like a deliverable address.
func ValidRecipient(addr string) bool {
	return recipientPattern.MatchString(strings.TrimSpace(addr))
}

// Compose validates msg and returns the encoded envelope.
func Compose(msg model.OutboundMessage) (string, error) {
	return ComposeAt(msg, time.Now())
}

// ComposeAt is Compose with an explicit Date header.
func ComposeAt(msg model.OutboundMessage, date time.Time) (string, error) {
	to := strings.TrimSpace(msg.To)
	if !ValidRecipient(to) {
		return "", apperr.NewValidationError("to", "no recipient")
	}
	if strings.TrimSpace(msg.From) == "" {
		return "", apperr.NewValidationError("from", "no sender address")
	}

	raw, err := build(msg, to, date)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func build(msg model.OutboundMessage, to string, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(msg.Subject)
	h.Set("MIME-Version", "1.0")
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating mime writer: %w", err)
	}

	var ih mail.InlineHeader
	ih.Set("Content-Type", "text/html; charset=utf-8")
	ih.Set("Content-Transfer-Encoding", "quoted-printable")
	iw, err := mw.CreateSingleInline(ih)
	if err != nil {
		return nil, fmt.Errorf("creating html part: %w", err)
	}
	if _, err := io.WriteString(iw, msg.HTMLBody); err != nil {
		return nil, fmt.Errorf("writing html part: %w", err)
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("closing html part: %w", err)
	}

	name := msg.AttachmentName
	if name == "" {
		name = DefaultAttachmentName
	}
	var ah mail.AttachmentHeader
	ah.Set("Content-Type", "application/pdf")
	ah.Set("Content-Transfer-Encoding", "base64")
	ah.SetFilename(name)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("creating attachment part: %w", err)
	}
	if _, err := aw.Write(msg.Attachment); err != nil {
		return nil, fmt.Errorf("writing attachment: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("closing attachment: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing envelope: %w", err)
	}
	return buf.Bytes(), nil
}
