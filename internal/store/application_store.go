package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/model"
)

const applicationColumns = `id, owner, job_id, resume_id, status, email_message_id, thread_id,
	job_title, company, job_url, contact_email, created_at, updated_at`

// CreateApplication inserts app, assigning an id and timestamps.
func (s *SQLStore) CreateApplication(ctx context.Context, app *model.ApplicationRecord) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = model.StatusApplied
	}
	now := s.timestamp()
	app.CreatedAt, app.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO applications (`+applicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		app.ID, app.Owner, app.JobID, app.ResumeID, app.Status, app.EmailMessageID, app.ThreadID,
		app.JobTitle, app.Company, app.JobURL, app.ContactEmail, app.CreatedAt, app.UpdatedAt)
	return apperr.Persistence("create application", err)
}

// GetApplication returns the application id if it belongs to owner.
func (s *SQLStore) GetApplication(ctx context.Context, owner, id string) (*model.ApplicationRecord, error) {
	var app model.ApplicationRecord
	err := s.db.GetContext(ctx, &app,
		s.rebind(`SELECT `+applicationColumns+` FROM applications WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return nil, notFound("get application "+id, err)
	}
	return &app, nil
}

// ListApplications returns owner's applications, oldest first.
func (s *SQLStore) ListApplications(ctx context.Context, owner string) ([]model.ApplicationRecord, error) {
	apps := []model.ApplicationRecord{}
	err := s.db.SelectContext(ctx, &apps,
		s.rebind(`SELECT `+applicationColumns+` FROM applications WHERE owner = ? ORDER BY created_at, id`), owner)
	if err != nil {
		return nil, apperr.Persistence("list applications", err)
	}
	return apps, nil
}

// updateApplication overwrites status and correlation fields.
func (s *SQLStore) updateApplication(ctx context.Context, db sqlx.ExecerContext, app *model.ApplicationRecord) error {
	app.UpdatedAt = s.timestamp()
	res, err := db.ExecContext(ctx, s.rebind(`UPDATE applications SET
			status = ?, email_message_id = ?, thread_id = ?,
			job_title = ?, company = ?, job_url = ?, contact_email = ?, updated_at = ?
		WHERE id = ? AND owner = ?`),
		app.Status, app.EmailMessageID, app.ThreadID,
		app.JobTitle, app.Company, app.JobURL, app.ContactEmail, app.UpdatedAt,
		app.ID, app.Owner)
	if err != nil {
		return apperr.Persistence("update application", err)
	}
	return expectOne("update application "+app.ID, res)
}

// AppendEvent adds ev to the event log.
func (s *SQLStore) AppendEvent(ctx context.Context, ev *model.ApplicationEvent) error {
	return s.appendEvent(ctx, s.db, ev)
}

func (s *SQLStore) appendEvent(ctx context.Context, db sqlx.ExecerContext, ev *model.ApplicationEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Payload == nil {
		ev.Payload = model.Metadata{}
	}
	ev.CreatedAt = s.timestamp()

	_, err := db.ExecContext(ctx, s.rebind(`INSERT INTO application_events
		(id, application_id, owner, type, payload, provider_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.ApplicationID, ev.Owner, ev.Type, ev.Payload, ev.ProviderMessageID, ev.CreatedAt)
	return apperr.Persistence("append event", err)
}

// ListEvents returns owner's events in insertion order.
func (s *SQLStore) ListEvents(ctx context.Context, owner string) ([]model.ApplicationEvent, error) {
	events := []model.ApplicationEvent{}
	err := s.db.SelectContext(ctx, &events,
		s.rebind(`SELECT id, application_id, owner, type, payload, provider_message_id, created_at
			FROM application_events WHERE owner = ? ORDER BY created_at, id`), owner)
	if err != nil {
		return nil, apperr.Persistence("list events", err)
	}
	return events, nil
}
