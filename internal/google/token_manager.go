package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/logging"
	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/store"
)

// DefaultHTTPTimeout bounds every call to the token endpoint.
const DefaultHTTPTimeout = 30 * time.Second

// Options configures a TokenManager. Zero values select defaults.
type Options struct {
	Client     ClientConfig
	HTTPClient *http.Client
	Locker     Locker
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
	Now        func() time.Time
}

// TokenManager keeps linked credentials usable. The credential store is the
// only token cache.
type TokenManager struct {
	credentials store.CredentialStore
	config      *oauth2.Config
	httpClient  *http.Client
	locker      Locker
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	now         func() time.Time
}

// NewTokenManager creates a TokenManager backed by credentials.
func NewTokenManager(credentials store.CredentialStore, opts Options) *TokenManager {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TokenManager{
		credentials: credentials,
		config:      opts.Client.OAuth2Config(),
		httpClient:  opts.HTTPClient,
		locker:      opts.Locker,
		logger:      logging.WithOperation(opts.Logger, "google.token"),
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
}

// EnsureValid returns a credential whose access token is valid now.
//
// A record that has not expired is returned as is without any network call.
// Otherwise the refresh runs under the credential's lock after re-reading the
// record, so concurrent callers refresh at most once. A provider rejection is
// a CredentialError and is not retried. A failure to persist refreshed tokens
// is logged and the fresh record is still returned.
func (m *TokenManager) EnsureValid(ctx context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error) {
	if rec.ValidAt(m.now()) {
		return rec, nil
	}
	if !rec.CanRefresh() {
		return nil, apperr.NewCredentialError(rec.ID, "no refresh token")
	}

	unlock, err := m.locker.Lock(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("locking credential %s: %w", rec.ID, err)
	}
	defer unlock()

	current, err := m.credentials.GetCredential(ctx, rec.Owner, rec.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NewCredentialError(rec.ID, "credential no longer linked")
		}
		return nil, fmt.Errorf("re-reading credential %s: %w", rec.ID, err)
	}
	if current.ValidAt(m.now()) {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSkipped)
		return current, nil
	}
	if !current.CanRefresh() {
		return nil, apperr.NewCredentialError(rec.ID, "no refresh token")
	}

	tok, err := m.refresh(ctx, current.RefreshToken)
	if err != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		m.logger.Warn("token refresh failed", logging.Credential(rec.ID), logging.Err(err))
		return nil, credentialErrorFrom(rec.ID, "refresh failed", err)
	}
	m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	merged := m.applyToken(current, tok)
	if err := m.credentials.UpdateCredentialTokens(ctx, merged); err != nil {
		m.logger.Warn("failed to save refreshed token", logging.Credential(rec.ID), logging.Err(err))
	}

	m.logger.Debug("token refreshed",
		logging.Credential(rec.ID),
		slog.String("access_token", logging.SanitizeToken(merged.AccessToken)))
	return merged, nil
}

// refresh performs exactly one refresh_token grant.
func (m *TokenManager) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	// An empty access token is never valid, so Token always hits the endpoint.
	tok, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()

	instrumentation.EndSpan(span, err)
	m.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh,
		statusOf(err), time.Since(start))
	return tok, err
}

// applyToken merges a token response into a copy of rec.
func (m *TokenManager) applyToken(rec *model.CredentialRecord, tok *oauth2.Token) *model.CredentialRecord {
	merged := *rec
	merged.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		merged.RefreshToken = tok.RefreshToken
	}
	merged.ExpiresAt = m.expiry(tok)

	extra := model.Metadata{}
	if tok.TokenType != "" {
		extra[model.RawTokenType] = tok.TokenType
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		extra[model.RawScope] = scope
	}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		extra[model.RawIDToken] = idToken
	}
	merged.Raw = rec.Raw.Merge(extra)
	return &merged
}

// expiry is now + expires_in on the manager's clock. Responses without
// expires_in fall back to the library's computed expiry; nil means the
// token will be treated as expired.
func (m *TokenManager) expiry(tok *oauth2.Token) *time.Time {
	var t time.Time
	switch {
	case tok.ExpiresIn > 0:
		t = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
	case !tok.Expiry.IsZero():
		t = tok.Expiry.UTC()
	default:
		return nil
	}
	return &t
}

// credentialErrorFrom converts an oauth2 failure into a CredentialError
// carrying the provider status and body when present.
func credentialErrorFrom(credentialID, reason string, err error) error {
	ce := &apperr.CredentialError{Reason: reason, CredentialID: credentialID, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			ce.ProviderStatus = re.Response.StatusCode
		}
		ce.Body = string(re.Body)
	}
	return ce
}

func statusOf(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}
