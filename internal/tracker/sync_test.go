package tracker

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/gmail"
	"github.com/teemow/applytrack/internal/gmail/gmailtest"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/model"
)

func (f *fixture) addApplication(t *testing.T) *model.ApplicationRecord {
	t.Helper()
	app := &model.ApplicationRecord{
		Owner:        testOwner,
		JobID:        f.job.ID,
		ResumeID:     f.resume.ID,
		Status:       model.StatusApplied,
		JobTitle:     f.job.Title,
		Company:      f.job.Company,
		JobURL:       f.job.URL,
		ContactEmail: "hr@acme.com",
	}
	require.NoError(t, f.store.CreateApplication(context.Background(), app))
	return app
}

func countEvents(events []model.ApplicationEvent, typ model.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestSyncInbox_IsolatesFailures(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			f := newFixture(t)
			for i := 0; i < 55; i++ {
				id := fmt.Sprintf("m%02d", i)
				f.gmail.AddMessage(gmailtest.Message(id, "t"+id, "me@example.com", "someone@else.org",
					"Newsletter "+id, "", "nothing relevant"))
			}
			f.gmail.FailGet("m07", http.StatusInternalServerError)

			res, err := f.service(nil, Options{Workers: workers}).SyncInbox(context.Background(), testOwner)
			require.NoError(t, err)

			assert.Equal(t, 49, res.Processed)
			assert.Equal(t, 49, res.Unmatched)
			assert.Equal(t, 1, res.Failed)
			assert.Len(t, res.Samples, MaxSamples)
			assert.Equal(t, "m00", res.Samples[0].MessageID)
			assert.Equal(t, []string{gmail.SentApplicationsQuery}, f.gmail.Queries())
			assert.Zero(t, f.gmail.GetCalls("m50"), "ceiling of 50 candidates")

			emails, err := f.store.ListEmails(context.Background(), testOwner)
			require.NoError(t, err)
			assert.Len(t, emails, 49)

			events := f.events(t)
			assert.Equal(t, 49, countEvents(events, model.EventEmailReceived))
			for _, ev := range events {
				assert.Nil(t, ev.ApplicationID, "unmatched events carry no application")
			}
		})
	}
}

func TestSyncInbox_MatchesAndUpdatesStatus(t *testing.T) {
	f := newFixture(t)
	app := f.addApplication(t)

	f.gmail.AddMessage(gmailtest.Message("m1", "t1", "hr@acme.com", "jane@example.com",
		"Interview invite - Acme", "see https://jobs.example.com/123", "We regret nothing. Let's talk."))
	f.gmail.AddMessage(gmailtest.Message("m2", "t2", "news@else.org", "jane@example.com",
		"Weekly digest", "", "nothing"))
	f.gmail.AddMessage(gmailtest.Message("m3", "t3", "jane@example.com", "hr@acme.com",
		"Following up", "", "Just checking in."))

	res, err := f.service(nil, Options{}).SyncInbox(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Unmatched)

	require.Len(t, res.Samples, 3)
	assert.Equal(t, MatchSample{MessageID: "m1", Subject: "Interview invite - Acme", ApplicationID: app.ID,
		MatchedBy: "url", StatusHint: model.StatusInterviewing}, res.Samples[0])
	assert.Equal(t, "", res.Samples[1].ApplicationID)
	assert.Equal(t, "recipient", res.Samples[2].MatchedBy)

	got, err := f.store.GetApplication(context.Background(), testOwner, app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInterviewing, got.Status)
	assert.Equal(t, "t1", got.ThreadID)
	assert.Equal(t, "m1", got.EmailMessageID)

	events := f.events(t)
	assert.Equal(t, 3, countEvents(events, model.EventEmailReceived))
	require.Equal(t, 1, countEvents(events, model.EventStatusChange))
	for _, ev := range events {
		if ev.Type == model.EventStatusChange {
			assert.Equal(t, "Applied", ev.Payload.String(model.PayloadFromStatus))
			assert.Equal(t, "Interviewing", ev.Payload.String(model.PayloadToStatus))
		}
	}
}

func TestSyncInbox_SkipsRecordedMessages(t *testing.T) {
	f := newFixture(t)
	f.addApplication(t)
	f.gmail.AddMessage(gmailtest.Message("m1", "t1", "hr@acme.com", "jane@example.com",
		"Your offer from Acme", "", "Congratulations"))
	svc := f.service(nil, Options{})

	first, err := svc.SyncInbox(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Matched)
	before := len(f.events(t))

	second, err := svc.SyncInbox(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 1, second.Skipped)
	assert.Empty(t, second.Samples)
	assert.Len(t, f.events(t), before, "no duplicate events")
}

func TestSyncInbox_SkipsSentApplication(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, Options{})
	sent, err := svc.SendApplication(context.Background(), testOwner, SendRequest{
		JobID: "j1", ResumeID: "r1", ToEmail: "hr@acme.com",
	})
	require.NoError(t, err)

	f.gmail.AddMessage(gmailtest.Message(sent.Message.ID, sent.Message.ThreadID, "jane@example.com",
		"hr@acme.com", sent.Message.Subject, "", "application"))

	res, err := svc.SyncInbox(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped, "the sent copy is already recorded")
}

func TestSyncInbox_Credentials(t *testing.T) {
	t.Run("no linked account", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.DeleteCredential(context.Background(), testOwner, f.cred.ID))
		_, err := f.service(nil, Options{}).SyncInbox(context.Background(), testOwner)
		assert.True(t, apperr.IsCredential(err))
	})

	t.Run("broken account is skipped", func(t *testing.T) {
		f := newFixture(t)
		second := f.addCredential(t, "google-2", "second@example.com")
		f.tokens.fail[f.cred.ID] = apperr.NewCredentialError(f.cred.ID, "refresh failed")
		f.gmail.AddMessage(gmailtest.Message("m1", "t1", "a@b.io", "c@d.io", "x", "", "y"))

		res, err := f.service(nil, Options{}).SyncInbox(context.Background(), testOwner)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Processed)

		emails, err := f.store.ListEmails(context.Background(), testOwner)
		require.NoError(t, err)
		require.Len(t, emails, 1)
		assert.Equal(t, second.ID, emails[0].CredentialID)
	})

	t.Run("all accounts broken", func(t *testing.T) {
		f := newFixture(t)
		second := f.addCredential(t, "google-2", "second@example.com")
		f.tokens.fail[f.cred.ID] = apperr.NewCredentialError(f.cred.ID, "no refresh token")
		f.tokens.fail[second.ID] = apperr.NewCredentialError(second.ID, "refresh failed")

		_, err := f.service(nil, Options{}).SyncInbox(context.Background(), testOwner)
		var ce *apperr.CredentialError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, f.cred.ID, ce.CredentialID, "first error is returned")
	})

	t.Run("list failure", func(t *testing.T) {
		f := newFixture(t)
		f.gmail.FailList(http.StatusUnauthorized)
		_, err := f.service(nil, Options{}).SyncInbox(context.Background(), testOwner)
		assert.True(t, apperr.IsTransport(err))
	})
}

func TestSyncInbox_PersistenceFailureCountsAsFailed(t *testing.T) {
	f := newFixture(t)
	f.gmail.AddMessage(gmailtest.Message("m1", "t1", "a@b.io", "c@d.io", "x", "", "y"))
	st := &failingStore{Store: f.store, failRecordInbound: 1}

	res, err := f.service(st, Options{}).SyncInbox(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Processed)
}

func TestSyncInbox_RetriesMessageAfterFailedWrite(t *testing.T) {
	f := newFixture(t)
	app := f.addApplication(t)
	f.gmail.AddMessage(gmailtest.Message("m1", "t1", "hr@acme.com", "jane@example.com",
		"Interview invite - Acme", "see https://jobs.example.com/123", "Can we talk on Monday?"))
	svc := f.service(&failingStore{Store: f.store, failRecordInbound: 1}, Options{})

	first, err := svc.SyncInbox(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Zero(t, first.Processed)

	got, err := f.store.GetApplication(context.Background(), testOwner, app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, got.Status)
	assert.Empty(t, f.events(t))
	emails, err := f.store.ListEmails(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Empty(t, emails, "a failed write leaves no dedup marker")

	second, err := svc.SyncInbox(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Matched)
	assert.Zero(t, second.Skipped)

	got, err = f.store.GetApplication(context.Background(), testOwner, app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInterviewing, got.Status)
	events := f.events(t)
	assert.Equal(t, 1, countEvents(events, model.EventEmailReceived))
	assert.Equal(t, 1, countEvents(events, model.EventStatusChange))
}

func TestSyncInbox_MessageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newFixture(t)
	app := f.addApplication(t)
	f.gmail.AddMessage(gmailtest.Message("m1", "t1", "hr@acme.com", "jane@example.com",
		"Interview invite - Acme", "see https://jobs.example.com/123", "Let's talk."))

	_, err := f.service(nil, Options{}).SyncInbox(context.Background(), testOwner)
	require.NoError(t, err)

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "sync.message" {
			continue
		}
		found = true
		attrs := map[string]string{}
		for _, kv := range span.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsString()
		}
		assert.Equal(t, f.cred.ID, attrs[instrumentation.SpanAttrCredential])
		assert.Equal(t, "m1", attrs[instrumentation.SpanAttrMessageID])
		assert.Equal(t, app.ID, attrs[instrumentation.SpanAttrApplication])
	}
	assert.True(t, found, "one span per synced message")
}
