package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/logging"
	"github.com/teemow/applytrack/internal/model"
)

// IdentityClaims are the OpenID Connect claims read from an id_token.
type IdentityClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// AuthCodeURL returns the consent URL for linking a mailbox. Offline access
// and a forced consent prompt make Google issue a refresh token.
func (m *TokenManager) AuthCodeURL(state string) string {
	return m.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for tokens and stores them for
// owner. Linking a mailbox the owner already linked updates the existing
// record instead of adding a second one.
func (m *TokenManager) Exchange(ctx context.Context, owner, code string) (*model.CredentialRecord, error) {
	if code == "" {
		return nil, apperr.NewValidationError("code", "authorization code is required")
	}

	start := time.Now()
	spanCtx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange)
	tok, err := m.config.Exchange(context.WithValue(spanCtx, oauth2.HTTPClient, m.httpClient), code)
	instrumentation.EndSpan(span, err)
	m.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, statusOf(err), time.Since(start))
	if err != nil {
		m.metrics.RecordAccountLink(ctx, instrumentation.OAuthResultFailure)
		return nil, credentialErrorFrom("", "authorization code exchange failed", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	claims, err := ParseIDToken(idToken)
	if err != nil {
		m.metrics.RecordAccountLink(ctx, instrumentation.OAuthResultFailure)
		return nil, apperr.NewCredentialError("", "identity token missing or invalid: "+err.Error())
	}

	rec := &model.CredentialRecord{
		Owner:          owner,
		Provider:       model.ProviderGoogle,
		ProviderUserID: claims.Subject,
		Raw: model.Metadata{
			model.RawEmail: claims.Email,
			model.RawName:  claims.Name,
		},
	}
	rec = m.applyToken(rec, tok)

	existing, err := m.credentials.FindCredentialByProviderUser(ctx, owner, model.ProviderGoogle, claims.Subject)
	switch {
	case err == nil:
		existing.AccessToken = rec.AccessToken
		if rec.RefreshToken != "" {
			existing.RefreshToken = rec.RefreshToken
		}
		existing.ExpiresAt = rec.ExpiresAt
		existing.Raw = existing.Raw.Merge(rec.Raw)
		if err := m.credentials.UpdateCredentialTokens(ctx, existing); err != nil {
			return nil, fmt.Errorf("updating linked credential: %w", err)
		}
		rec = existing
	case errors.Is(err, apperr.ErrNotFound):
		if err := m.credentials.CreateCredential(ctx, rec); err != nil {
			return nil, fmt.Errorf("storing linked credential: %w", err)
		}
	default:
		return nil, fmt.Errorf("looking up linked credential: %w", err)
	}

	m.metrics.RecordAccountLink(ctx, instrumentation.OAuthResultSuccess)
	m.logger.Info("mailbox linked",
		logging.OwnerHash(owner),
		logging.Credential(rec.ID),
		logging.Domain(claims.Email))
	return rec, nil
}

// ParseIDToken reads the identity claims of an id_token without verifying
// its signature. Only use it on tokens received directly from the token
// endpoint over TLS.
func ParseIDToken(raw string) (*IdentityClaims, error) {
	if raw == "" {
		return nil, errors.New("no id_token in token response")
	}
	claims := &IdentityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parsing id_token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("id_token has no subject")
	}
	return claims, nil
}
