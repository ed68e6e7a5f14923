// Package store persists credentials, applications, events and mail records
// through sqlx. SQLite (modernc.org/sqlite) and PostgreSQL (pgx) share the
// same queries; placeholders are rebound per driver.
package store

import (
	"context"

	"github.com/teemow/applytrack/internal/model"
)

// CredentialStore is the gateway to linked mailbox credentials. Reads are
// always scoped to an owner; a record owned by someone else is reported as
// apperr.ErrNotFound.
type CredentialStore interface {
	GetCredential(ctx context.Context, owner, id string) (*model.CredentialRecord, error)
	ListCredentials(ctx context.Context, owner, provider string) ([]model.CredentialRecord, error)
	FindCredentialByProviderUser(ctx context.Context, owner, provider, providerUserID string) (*model.CredentialRecord, error)
	CreateCredential(ctx context.Context, rec *model.CredentialRecord) error
	// UpdateCredentialTokens writes the access token, refresh token, expiry
	// and raw metadata. The provider user id is never changed.
	UpdateCredentialTokens(ctx context.Context, rec *model.CredentialRecord) error
	DeleteCredential(ctx context.Context, owner, id string) error
}

// JobStore reads job postings owned by a user.
type JobStore interface {
	GetJob(ctx context.Context, owner, id string) (*model.Job, error)
	ListJobs(ctx context.Context, owner string) ([]model.Job, error)
	UpsertJob(ctx context.Context, job *model.Job) error
}

// ResumeStore reads resumes and records their rendered PDF location.
type ResumeStore interface {
	GetResume(ctx context.Context, owner, id string) (*model.Resume, error)
	UpsertResume(ctx context.Context, resume *model.Resume) error
	SetResumePDFURL(ctx context.Context, owner, id, url string) error
}

// ApplicationStore persists application records. Updates arrive through
// EmailStore.RecordInbound and are last writer wins.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app *model.ApplicationRecord) error
	GetApplication(ctx context.Context, owner, id string) (*model.ApplicationRecord, error)
	ListApplications(ctx context.Context, owner string) ([]model.ApplicationRecord, error)
}

// EventStore is the append-only application event log.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *model.ApplicationEvent) error
	ListEvents(ctx context.Context, owner string) ([]model.ApplicationEvent, error)
}

// EmailStore records sent and received messages, unique per credential and
// provider message id.
type EmailStore interface {
	// SaveEmail inserts rec and reports whether it was new. An existing
	// (credential, provider message id) pair leaves the stored row untouched.
	SaveEmail(ctx context.Context, rec *model.EmailRecord) (bool, error)
	// RecordInbound saves a received message together with the application
	// update and events it caused, all or nothing.
	RecordInbound(ctx context.Context, in InboundRecord) (bool, error)
	ListEmails(ctx context.Context, owner string) ([]model.EmailRecord, error)
}

// Store combines every persistence concern of applytrack.
type Store interface {
	CredentialStore
	JobStore
	ResumeStore
	ApplicationStore
	EventStore
	EmailStore

	Ping(ctx context.Context) error
	Close() error
}
