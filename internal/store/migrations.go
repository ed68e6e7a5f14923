package store

// migration holds a single schema migration with its target version and
// statements. "$TIMESTAMP" is replaced by the driver's timestamp type.
type migration struct {
	version int
	stmts   []string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS credentials (
	id               TEXT PRIMARY KEY,
	owner            TEXT NOT NULL,
	provider         TEXT NOT NULL,
	provider_user_id TEXT NOT NULL DEFAULT '',
	access_token     TEXT NOT NULL DEFAULT '',
	refresh_token    TEXT NOT NULL DEFAULT '',
	expires_at       $TIMESTAMP NULL,
	raw              TEXT NOT NULL DEFAULT '{}',
	created_at       $TIMESTAMP NOT NULL,
	updated_at       $TIMESTAMP NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_credentials_owner ON credentials(owner, provider)`,

			`CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT ''
)`,
			`CREATE TABLE IF NOT EXISTS resumes (
	id      TEXT PRIMARY KEY,
	owner   TEXT NOT NULL,
	title   TEXT NOT NULL DEFAULT '',
	pdf_url TEXT NOT NULL DEFAULT ''
)`,

			`CREATE TABLE IF NOT EXISTS applications (
	id               TEXT PRIMARY KEY,
	owner            TEXT NOT NULL,
	job_id           TEXT NOT NULL,
	resume_id        TEXT NOT NULL,
	status           TEXT NOT NULL,
	email_message_id TEXT NOT NULL DEFAULT '',
	thread_id        TEXT NOT NULL DEFAULT '',
	job_title        TEXT NOT NULL DEFAULT '',
	company          TEXT NOT NULL DEFAULT '',
	job_url          TEXT NOT NULL DEFAULT '',
	contact_email    TEXT NOT NULL DEFAULT '',
	created_at       $TIMESTAMP NOT NULL,
	updated_at       $TIMESTAMP NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_applications_owner ON applications(owner, created_at)`,

			`CREATE TABLE IF NOT EXISTS application_events (
	id                  TEXT PRIMARY KEY,
	application_id      TEXT NULL,
	owner               TEXT NOT NULL,
	type                TEXT NOT NULL,
	payload             TEXT NOT NULL DEFAULT '{}',
	provider_message_id TEXT NOT NULL DEFAULT '',
	created_at          $TIMESTAMP NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_events_owner ON application_events(owner, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_events_application ON application_events(application_id)`,

			`CREATE TABLE IF NOT EXISTS emails (
	id                  TEXT PRIMARY KEY,
	owner               TEXT NOT NULL,
	credential_id       TEXT NOT NULL,
	provider_message_id TEXT NOT NULL,
	thread_id           TEXT NOT NULL DEFAULT '',
	direction           TEXT NOT NULL,
	from_addr           TEXT NOT NULL DEFAULT '',
	to_addr             TEXT NOT NULL DEFAULT '',
	subject             TEXT NOT NULL DEFAULT '',
	snippet             TEXT NOT NULL DEFAULT '',
	body                TEXT NOT NULL DEFAULT '',
	received_at         $TIMESTAMP NOT NULL,
	created_at          $TIMESTAMP NOT NULL,
	UNIQUE (credential_id, provider_message_id)
)`,
			`CREATE INDEX IF NOT EXISTS idx_emails_owner ON emails(owner, received_at)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_credentials_provider_user
	ON credentials(owner, provider, provider_user_id)
	WHERE provider_user_id <> ''`,
		},
	},
}
