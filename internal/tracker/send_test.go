package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/model"
)

func TestSendApplication(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, Options{})
	ctx := context.Background()

	res, err := svc.SendApplication(ctx, testOwner, SendRequest{
		JobID:           "j1",
		ResumeID:        "r1",
		SenderAccountID: f.cred.ID,
		ToEmail:         "hr@acme.com",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, SentInfo{
		ID: "sent-1", ThreadID: "thread-sent-1", To: "hr@acme.com",
		Subject: "Application for Backend Engineer at Acme",
	}, res.Message)

	apps := f.applications(t)
	require.Len(t, apps, 1)
	assert.Equal(t, model.StatusApplied, apps[0].Status)
	assert.Equal(t, "j1", apps[0].JobID)
	assert.Equal(t, "r1", apps[0].ResumeID)
	assert.Equal(t, "sent-1", apps[0].EmailMessageID)
	assert.Equal(t, "Backend Engineer", apps[0].JobTitle)
	assert.Equal(t, "hr@acme.com", apps[0].ContactEmail)
	require.NotNil(t, res.Application)
	assert.Equal(t, apps[0].ID, res.Application.ID)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSent, events[0].Type)
	require.NotNil(t, events[0].ApplicationID)
	assert.Equal(t, apps[0].ID, *events[0].ApplicationID)
	assert.Equal(t, "sent-1", events[0].Payload.String(model.PayloadMessageID))

	emails, err := f.store.ListEmails(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, model.DirectionSent, emails[0].Direction)
	assert.Equal(t, f.cred.ID, emails[0].CredentialID)

	// The resume had no PDF yet: it was rendered once and the URL stored.
	assert.Equal(t, []string{"r1"}, f.docs.rendered)
	resume, err := f.store.GetResume(ctx, testOwner, "r1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/owner-1/r1.pdf", resume.PDFURL)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, apps[0].ID, f.notifier.events[0].ApplicationID)

	// The envelope reached Gmail with the sender's token and the PDF attached.
	assert.Equal(t, []string{"Bearer access-google-1"}, f.gmail.Tokens())
	sent := f.gmail.Sent()
	require.Len(t, sent, 1)
	raw, err := base64.RawURLEncoding.DecodeString(sent[0])
	require.NoError(t, err)
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	assert.Equal(t, "hr@acme.com", to[0].Address)
	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", from[0].Address)

	_, err = mr.NextPart()
	require.NoError(t, err)
	att, err := mr.NextPart()
	require.NoError(t, err)
	pdf, err := io.ReadAll(att.Body)
	require.NoError(t, err)
	assert.Equal(t, f.docs.pdf, pdf)
}

func TestSendApplication_MissingRecipient(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, Options{})

	_, err := svc.SendApplication(context.Background(), testOwner, SendRequest{
		JobID: "j1", ResumeID: "r1", SenderAccountID: f.cred.ID,
	})

	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "no recipient", ve.Reason)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	assert.Empty(t, f.gmail.Sent(), "nothing sent")
	assert.Empty(t, f.applications(t), "nothing recorded")
	assert.Empty(t, f.events(t))
	assert.Empty(t, f.docs.rendered)
	assert.Zero(t, f.tokens.calls)
	assert.Empty(t, f.notifier.events)
}

func TestSendApplication_DefaultsToJobContactAndFirstAccount(t *testing.T) {
	f := newFixture(t)
	f.job.ContactEmail = "talent@acme.io"
	require.NoError(t, f.store.UpsertJob(context.Background(), f.job))
	f.addCredential(t, "google-2", "second@example.com")

	f.resume.PDFURL = "https://cdn.example/existing.pdf"
	require.NoError(t, f.store.UpsertResume(context.Background(), f.resume))

	svc := f.service(nil, Options{})
	res, err := svc.SendApplication(context.Background(), testOwner, SendRequest{
		JobID: "j1", ResumeID: "r1", Subject: "Hello Acme", Body: "<p>custom</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "talent@acme.io", res.Message.To)
	assert.Equal(t, "Hello Acme", res.Message.Subject)
	assert.Equal(t, []string{"Bearer access-google-1"}, f.gmail.Tokens(), "oldest account sends")
	assert.Empty(t, f.docs.rendered, "existing PDF is reused")
	assert.Equal(t, []string{"https://cdn.example/existing.pdf"}, f.docs.fetched)
}

func TestSendApplication_Failures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*fixture) SendRequest
		wantStatus int
	}{
		{
			name: "unknown job",
			setup: func(f *fixture) SendRequest {
				return SendRequest{JobID: "nope", ResumeID: "r1", ToEmail: "hr@acme.com"}
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "missing resume id",
			setup: func(f *fixture) SendRequest {
				return SendRequest{JobID: "j1", ToEmail: "hr@acme.com"}
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "sender account of someone else",
			setup: func(f *fixture) SendRequest {
				return SendRequest{JobID: "j1", ResumeID: "r1", SenderAccountID: "foreign", ToEmail: "hr@acme.com"}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "token cannot be refreshed",
			setup: func(f *fixture) SendRequest {
				f.tokens.fail[f.cred.ID] = apperr.NewCredentialError(f.cred.ID, "no refresh token")
				return SendRequest{JobID: "j1", ResumeID: "r1", ToEmail: "hr@acme.com"}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "renderer down",
			setup: func(f *fixture) SendRequest {
				f.docs.renderErr = &apperr.TransportError{Op: "resume.render", Status: 503}
				return SendRequest{JobID: "j1", ResumeID: "r1", ToEmail: "hr@acme.com"}
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "gmail rejects",
			setup: func(f *fixture) SendRequest {
				f.gmail.FailSend(http.StatusForbidden)
				return SendRequest{JobID: "j1", ResumeID: "r1", ToEmail: "hr@acme.com"}
			},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := tt.setup(f)
			_, err := f.service(nil, Options{}).SendApplication(context.Background(), testOwner, req)
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, apperr.HTTPStatus(err), err.Error())
			assert.Empty(t, f.applications(t))
			assert.Empty(t, f.events(t))
			assert.Empty(t, f.notifier.events)
		})
	}
}

func TestSendApplication_BookkeepingFailuresAreWarnings(t *testing.T) {
	f := newFixture(t)
	st := &failingStore{Store: f.store, failSaveEmail: true, failCreateApplication: true}
	svc := f.service(st, Options{})

	res, err := svc.SendApplication(context.Background(), testOwner, SendRequest{
		JobID: "j1", ResumeID: "r1", ToEmail: "hr@acme.com",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sent-1", res.Message.ID)
	assert.Nil(t, res.Application)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "failed to record sent message")
	assert.Contains(t, res.Warnings[1], "failed to record application")
	assert.Len(t, f.gmail.Sent(), 1)
	assert.Empty(t, f.events(t))
}
