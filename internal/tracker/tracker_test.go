package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/gmail"
	"github.com/teemow/applytrack/internal/gmail/gmailtest"
	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/notify"
	"github.com/teemow/applytrack/internal/store"
	"github.com/teemow/applytrack/internal/store/storetest"
)

const testOwner = "owner-1"

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeTokens struct {
	mu    sync.Mutex
	fail  map[string]error
	calls int
}

func (f *fakeTokens) EnsureValid(_ context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[rec.ID]; err != nil {
		return nil, err
	}
	return rec, nil
}

type fakeDocuments struct {
	mu        sync.Mutex
	pdf       []byte
	renderErr error
	rendered  []string
	fetched   []string
}

func (f *fakeDocuments) Render(_ context.Context, owner, resumeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rendered = append(f.rendered, resumeID)
	if f.renderErr != nil {
		return "", f.renderErr
	}
	return "https://cdn.example/" + owner + "/" + resumeID + ".pdf", nil
}

func (f *fakeDocuments) Download(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	return f.pdf, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

type fixture struct {
	store    *store.SQLStore
	gmail    *gmailtest.Server
	tokens   *fakeTokens
	docs     *fakeDocuments
	notifier *recordingNotifier
	cred     *model.CredentialRecord
	job      *model.Job
	resume   *model.Resume
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    storetest.NewTestStore(t),
		gmail:    gmailtest.NewServer(t),
		tokens:   &fakeTokens{fail: map[string]error{}},
		docs:     &fakeDocuments{pdf: []byte("%PDF-1.7 resume")},
		notifier: &recordingNotifier{},
	}
	f.store.SetClock(steppingClock())

	f.cred = f.addCredential(t, "google-1", "jane@example.com")
	f.job = &model.Job{ID: "j1", Owner: testOwner, Title: "Backend Engineer", Company: "Acme",
		URL: "https://jobs.example.com/123"}
	require.NoError(t, f.store.UpsertJob(ctx, f.job))
	f.resume = &model.Resume{ID: "r1", Owner: testOwner, Title: "CV"}
	require.NoError(t, f.store.UpsertResume(ctx, f.resume))
	return f
}

func (f *fixture) addCredential(t *testing.T, sub, email string) *model.CredentialRecord {
	t.Helper()
	expires := testNow.Add(time.Hour)
	rec := &model.CredentialRecord{
		Owner:          testOwner,
		Provider:       model.ProviderGoogle,
		ProviderUserID: sub,
		AccessToken:    "access-" + sub,
		RefreshToken:   "refresh-" + sub,
		ExpiresAt:      &expires,
		Raw:            model.Metadata{model.RawEmail: email, model.RawName: "Jane Doe"},
	}
	require.NoError(t, f.store.CreateCredential(context.Background(), rec))
	return rec
}

func (f *fixture) service(st store.Store, opts Options) *Service {
	if st == nil {
		st = f.store
	}
	opts.Notifier = f.notifier
	opts.Now = func() time.Time { return testNow }
	return NewService(st, f.tokens, GmailMailboxes(gmail.Options{
		Endpoint:   f.gmail.Endpoint(),
		HTTPClient: f.gmail.Client(),
	}), f.docs, opts)
}

func (f *fixture) events(t *testing.T) []model.ApplicationEvent {
	t.Helper()
	events, err := f.store.ListEvents(context.Background(), testOwner)
	require.NoError(t, err)
	return events
}

func (f *fixture) applications(t *testing.T) []model.ApplicationRecord {
	t.Helper()
	apps, err := f.store.ListApplications(context.Background(), testOwner)
	require.NoError(t, err)
	return apps
}

// steppingClock advances one second per reading so rows order by creation.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := testNow
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

var errBoom = errors.New("boom")

// failingStore fails selected writes.
type failingStore struct {
	store.Store
	failCreateApplication bool
	failSaveEmail         bool
	// failRecordInbound fails that many RecordInbound calls, then passes.
	failRecordInbound int
}

func (s *failingStore) CreateApplication(ctx context.Context, app *model.ApplicationRecord) error {
	if s.failCreateApplication {
		return apperr.Persistence("create application", errBoom)
	}
	return s.Store.CreateApplication(ctx, app)
}

func (s *failingStore) SaveEmail(ctx context.Context, rec *model.EmailRecord) (bool, error) {
	if s.failSaveEmail {
		return false, apperr.Persistence("save email", errBoom)
	}
	return s.Store.SaveEmail(ctx, rec)
}

func (s *failingStore) RecordInbound(ctx context.Context, in store.InboundRecord) (bool, error) {
	if s.failRecordInbound > 0 {
		s.failRecordInbound--
		return false, apperr.Persistence("record inbound", errBoom)
	}
	return s.Store.RecordInbound(ctx, in)
}
