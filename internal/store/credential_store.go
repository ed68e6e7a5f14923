package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/model"
)

const credentialColumns = `id, owner, provider, provider_user_id, access_token, refresh_token,
	expires_at, raw, created_at, updated_at`

// GetCredential returns the credential id if it belongs to owner.
func (s *SQLStore) GetCredential(ctx context.Context, owner, id string) (*model.CredentialRecord, error) {
	var rec model.CredentialRecord
	err := s.db.GetContext(ctx, &rec,
		s.rebind(`SELECT `+credentialColumns+` FROM credentials WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return nil, notFound("get credential "+id, err)
	}
	return &rec, nil
}

// ListCredentials returns owner's credentials for provider, oldest first.
func (s *SQLStore) ListCredentials(ctx context.Context, owner, provider string) ([]model.CredentialRecord, error) {
	recs := []model.CredentialRecord{}
	err := s.db.SelectContext(ctx, &recs,
		s.rebind(`SELECT `+credentialColumns+` FROM credentials
			WHERE owner = ? AND provider = ? ORDER BY created_at, id`), owner, provider)
	if err != nil {
		return nil, apperr.Persistence("list credentials", err)
	}
	return recs, nil
}

// FindCredentialByProviderUser looks up the row a repeated link of the same
// mailbox should update.
func (s *SQLStore) FindCredentialByProviderUser(ctx context.Context, owner, provider, providerUserID string) (*model.CredentialRecord, error) {
	var rec model.CredentialRecord
	err := s.db.GetContext(ctx, &rec,
		s.rebind(`SELECT `+credentialColumns+` FROM credentials
			WHERE owner = ? AND provider = ? AND provider_user_id = ?`), owner, provider, providerUserID)
	if err != nil {
		return nil, notFound("find credential", err)
	}
	return &rec, nil
}

// CreateCredential inserts rec, assigning an id and timestamps when unset.
func (s *SQLStore) CreateCredential(ctx context.Context, rec *model.CredentialRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Provider == "" {
		rec.Provider = model.ProviderGoogle
	}
	if rec.Raw == nil {
		rec.Raw = model.Metadata{}
	}
	now := s.timestamp()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.ExpiresAt = utcPtr(rec.ExpiresAt)

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO credentials (`+credentialColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.Owner, rec.Provider, rec.ProviderUserID, rec.AccessToken, rec.RefreshToken,
		rec.ExpiresAt, rec.Raw, rec.CreatedAt, rec.UpdatedAt)
	return apperr.Persistence("create credential", err)
}

// UpdateCredentialTokens persists refreshed token material.
func (s *SQLStore) UpdateCredentialTokens(ctx context.Context, rec *model.CredentialRecord) error {
	rec.UpdatedAt = s.timestamp()
	rec.ExpiresAt = utcPtr(rec.ExpiresAt)
	if rec.Raw == nil {
		rec.Raw = model.Metadata{}
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE credentials
		SET access_token = ?, refresh_token = ?, expires_at = ?, raw = ?, updated_at = ?
		WHERE id = ? AND owner = ?`),
		rec.AccessToken, rec.RefreshToken, rec.ExpiresAt, rec.Raw, rec.UpdatedAt, rec.ID, rec.Owner)
	if err != nil {
		return apperr.Persistence("update credential tokens", err)
	}
	return expectOne("update credential "+rec.ID, res)
}

// DeleteCredential unlinks a mailbox. Stored mail records stay.
func (s *SQLStore) DeleteCredential(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM credentials WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return apperr.Persistence("delete credential", err)
	}
	return expectOne("delete credential "+id, res)
}
