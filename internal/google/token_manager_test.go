package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/store"
	"github.com/teemow/applytrack/internal/store/storetest"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// tokenEndpoint is a fake Google token endpoint that counts grants.
type tokenEndpoint struct {
	calls    atomic.Int32
	status   int
	body     string
	response map[string]any
	delay    time.Duration
	lastForm map[string]string
	mu       sync.Mutex
}

func newTokenEndpoint(t *testing.T, response map[string]any) (*tokenEndpoint, *httptest.Server) {
	t.Helper()
	te := &tokenEndpoint{status: http.StatusOK, response: response}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.calls.Add(1)
		require.NoError(t, r.ParseForm())
		te.mu.Lock()
		te.lastForm = map[string]string{}
		for k := range r.PostForm {
			te.lastForm[k] = r.PostForm.Get(k)
		}
		te.mu.Unlock()
		if te.delay > 0 {
			time.Sleep(te.delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(te.status)
		if te.body != "" {
			_, _ = w.Write([]byte(te.body))
			return
		}
		_ = json.NewEncoder(w).Encode(te.response)
	}))
	t.Cleanup(srv.Close)
	return te, srv
}

func (te *tokenEndpoint) form(key string) string {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.lastForm[key]
}

func newTestManager(t *testing.T, credentials store.CredentialStore, tokenURL string) *TokenManager {
	t.Helper()
	return NewTokenManager(credentials, Options{
		Client: ClientConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost/api/google/callback",
			TokenURL:     tokenURL,
			AuthURL:      "https://accounts.example.com/o/oauth2/auth",
		},
		Now: func() time.Time { return fixedNow },
	})
}

func seedCredential(t *testing.T, s store.CredentialStore, expiresAt *time.Time, refreshToken string) *model.CredentialRecord {
	t.Helper()
	rec := &model.CredentialRecord{
		Owner:          "owner-1",
		ProviderUserID: "sub-" + refreshToken,
		AccessToken:    "old-access",
		RefreshToken:   refreshToken,
		ExpiresAt:      expiresAt,
		Raw:            model.Metadata{model.RawEmail: "jane@example.com"},
	}
	require.NoError(t, s.CreateCredential(context.Background(), rec))
	return rec
}

func timePtr(t time.Time) *time.Time { return &t }

func TestEnsureValid_StillValid(t *testing.T) {
	s := storetest.NewTestStore(t)
	te, srv := newTokenEndpoint(t, nil)
	m := newTestManager(t, s, srv.URL)

	rec := seedCredential(t, s, timePtr(fixedNow.Add(time.Minute)), "rt")
	got, err := m.EnsureValid(context.Background(), rec)
	require.NoError(t, err)
	assert.Same(t, rec, got)
	assert.Equal(t, int32(0), te.calls.Load())
}

func TestEnsureValid_NoRefreshToken(t *testing.T) {
	s := storetest.NewTestStore(t)
	te, srv := newTokenEndpoint(t, nil)
	m := newTestManager(t, s, srv.URL)

	rec := seedCredential(t, s, timePtr(fixedNow.Add(-time.Minute)), "")
	_, err := m.EnsureValid(context.Background(), rec)

	var ce *apperr.CredentialError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "no refresh token", ce.Reason)
	assert.Equal(t, int32(0), te.calls.Load())

	stored, err := s.GetCredential(context.Background(), "owner-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "old-access", stored.AccessToken)
}

func TestEnsureValid_Refreshes(t *testing.T) {
	tests := []struct {
		name        string
		expiresAt   *time.Time
		response    map[string]any
		wantRefresh string
	}{
		{
			name:      "expired, refresh token kept",
			expiresAt: timePtr(fixedNow.Add(-time.Second)),
			response: map[string]any{
				"access_token": "new-access",
				"expires_in":   3600,
				"token_type":   "Bearer",
				"scope":        "https://www.googleapis.com/auth/gmail.send",
			},
			wantRefresh: "rt-original",
		},
		{
			name:      "expiry exactly now counts as expired",
			expiresAt: timePtr(fixedNow),
			response: map[string]any{
				"access_token": "new-access",
				"expires_in":   3600,
				"token_type":   "Bearer",
			},
			wantRefresh: "rt-original",
		},
		{
			name:      "unknown expiry, provider rotates refresh token",
			expiresAt: nil,
			response: map[string]any{
				"access_token":  "new-access",
				"refresh_token": "rt-rotated",
				"expires_in":    3600,
				"token_type":    "Bearer",
			},
			wantRefresh: "rt-rotated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := storetest.NewTestStore(t)
			te, srv := newTokenEndpoint(t, tt.response)
			m := newTestManager(t, s, srv.URL)
			rec := seedCredential(t, s, tt.expiresAt, "rt-original")

			got, err := m.EnsureValid(context.Background(), rec)
			require.NoError(t, err)

			assert.Equal(t, int32(1), te.calls.Load())
			assert.Equal(t, "refresh_token", te.form("grant_type"))
			assert.Equal(t, "rt-original", te.form("refresh_token"))
			assert.Equal(t, "client-id", te.form("client_id"))

			assert.Equal(t, "new-access", got.AccessToken)
			assert.Equal(t, tt.wantRefresh, got.RefreshToken)
			require.NotNil(t, got.ExpiresAt)
			assert.True(t, fixedNow.Add(time.Hour).Equal(*got.ExpiresAt))
			assert.Equal(t, "jane@example.com", got.Email(), "existing metadata survives the merge")
			assert.Equal(t, "Bearer", got.Raw.String(model.RawTokenType))

			stored, err := s.GetCredential(context.Background(), "owner-1", rec.ID)
			require.NoError(t, err)
			assert.Equal(t, "new-access", stored.AccessToken)
			assert.Equal(t, tt.wantRefresh, stored.RefreshToken)
			require.NotNil(t, stored.ExpiresAt)
			assert.True(t, fixedNow.Add(time.Hour).Equal(*stored.ExpiresAt))
		})
	}
}

func TestEnsureValid_ProviderRejects(t *testing.T) {
	s := storetest.NewTestStore(t)
	te, srv := newTokenEndpoint(t, nil)
	te.status = http.StatusBadRequest
	te.body = `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`
	m := newTestManager(t, s, srv.URL)

	rec := seedCredential(t, s, timePtr(fixedNow.Add(-time.Hour)), "rt")
	_, err := m.EnsureValid(context.Background(), rec)

	var ce *apperr.CredentialError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "refresh failed", ce.Reason)
	assert.Equal(t, http.StatusBadRequest, ce.ProviderStatus)
	assert.Contains(t, ce.Body, "invalid_grant")
	assert.Equal(t, int32(1), te.calls.Load(), "not retried")

	stored, err := s.GetCredential(context.Background(), "owner-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "old-access", stored.AccessToken)
}

func TestEnsureValid_ConcurrentCallersRefreshOnce(t *testing.T) {
	s := storetest.NewTestStore(t)
	te, srv := newTokenEndpoint(t, map[string]any{
		"access_token": "new-access",
		"expires_in":   3600,
		"token_type":   "Bearer",
	})
	te.delay = 20 * time.Millisecond
	m := newTestManager(t, s, srv.URL)
	rec := seedCredential(t, s, timePtr(fixedNow.Add(-time.Minute)), "rt")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*model.CredentialRecord, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stale := *rec
			results[i], errs[i] = m.EnsureValid(context.Background(), &stale)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), te.calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "new-access", results[i].AccessToken)
	}
	assert.Equal(t, 0, m.locker.(*LocalLocker).Len())
}

// failingUpdates wraps a store and fails every token update.
type failingUpdates struct {
	store.CredentialStore
}

func (f failingUpdates) UpdateCredentialTokens(context.Context, *model.CredentialRecord) error {
	return apperr.Persistence("update credential tokens", errors.New("disk full"))
}

func TestEnsureValid_PersistFailureStillReturnsToken(t *testing.T) {
	s := storetest.NewTestStore(t)
	_, srv := newTokenEndpoint(t, map[string]any{
		"access_token": "new-access",
		"expires_in":   3600,
		"token_type":   "Bearer",
	})
	m := newTestManager(t, failingUpdates{s}, srv.URL)
	rec := seedCredential(t, s, timePtr(fixedNow.Add(-time.Minute)), "rt")

	got, err := m.EnsureValid(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
}

func TestEnsureValid_UnlinkedWhileWaiting(t *testing.T) {
	s := storetest.NewTestStore(t)
	te, srv := newTokenEndpoint(t, nil)
	m := newTestManager(t, s, srv.URL)
	rec := seedCredential(t, s, timePtr(fixedNow.Add(-time.Minute)), "rt")
	require.NoError(t, s.DeleteCredential(context.Background(), "owner-1", rec.ID))

	_, err := m.EnsureValid(context.Background(), rec)
	assert.True(t, apperr.IsCredential(err))
	assert.Equal(t, int32(0), te.calls.Load())
}
