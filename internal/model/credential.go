package model

import "time"

// ProviderGoogle is the provider tag stored on Google credentials.
const ProviderGoogle = "google"

// Keys recognized in CredentialRecord.Raw.
const (
	RawEmail     = "email"
	RawName      = "name"
	RawTokenType = "token_type"
	RawScope     = "scope"
	RawIDToken   = "id_token"
)

// CredentialRecord is the persisted OAuth grant for one linked mailbox.
//
// An owner may link several accounts of the same provider. ProviderUserID is
// the subject from the provider identity token and never changes once set.
type CredentialRecord struct {
	ID             string     `db:"id" json:"id"`
	Owner          string     `db:"owner" json:"owner"`
	Provider       string     `db:"provider" json:"provider"`
	ProviderUserID string     `db:"provider_user_id" json:"provider_user_id"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Raw            Metadata   `db:"raw" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Email returns the mailbox address recovered from the provider metadata.
func (c *CredentialRecord) Email() string {
	return c.Raw.String(RawEmail)
}

// DisplayName returns the account holder name recovered from the provider metadata.
func (c *CredentialRecord) DisplayName() string {
	return c.Raw.String(RawName)
}

// ValidAt reports whether the access token is known to be valid at t.
// A nil expiry is treated as expired.
func (c *CredentialRecord) ValidAt(t time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.After(t)
}

// CanRefresh reports whether the credential can renew itself.
func (c *CredentialRecord) CanRefresh() bool {
	return c.RefreshToken != ""
}

// LinkedAccount is the public view of a credential. It never carries tokens.
type LinkedAccount struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Account converts the credential into its public view.
func (c *CredentialRecord) Account() LinkedAccount {
	return LinkedAccount{
		ID:        c.ID,
		Provider:  c.Provider,
		Email:     c.Email(),
		Name:      c.DisplayName(),
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
	}
}
