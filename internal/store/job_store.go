package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/model"
)

// GetJob returns the job id if it belongs to owner.
func (s *SQLStore) GetJob(ctx context.Context, owner, id string) (*model.Job, error) {
	var job model.Job
	err := s.db.GetContext(ctx, &job,
		s.rebind(`SELECT id, owner, title, company, url, contact_email FROM jobs WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return nil, notFound("get job "+id, err)
	}
	return &job, nil
}

// ListJobs returns every job of owner ordered by id.
func (s *SQLStore) ListJobs(ctx context.Context, owner string) ([]model.Job, error) {
	jobs := []model.Job{}
	err := s.db.SelectContext(ctx, &jobs,
		s.rebind(`SELECT id, owner, title, company, url, contact_email FROM jobs WHERE owner = ? ORDER BY id`), owner)
	if err != nil {
		return nil, apperr.Persistence("list jobs", err)
	}
	return jobs, nil
}

// UpsertJob inserts or replaces a job posting.
func (s *SQLStore) UpsertJob(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO jobs (id, owner, title, company, url, contact_email)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner = excluded.owner, title = excluded.title, company = excluded.company,
			url = excluded.url, contact_email = excluded.contact_email`),
		job.ID, job.Owner, job.Title, job.Company, job.URL, job.ContactEmail)
	return apperr.Persistence("upsert job", err)
}

// GetResume returns the resume id if it belongs to owner.
func (s *SQLStore) GetResume(ctx context.Context, owner, id string) (*model.Resume, error) {
	var resume model.Resume
	err := s.db.GetContext(ctx, &resume,
		s.rebind(`SELECT id, owner, title, pdf_url FROM resumes WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return nil, notFound("get resume "+id, err)
	}
	return &resume, nil
}

// UpsertResume inserts or replaces a resume.
func (s *SQLStore) UpsertResume(ctx context.Context, resume *model.Resume) error {
	if resume.ID == "" {
		resume.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO resumes (id, owner, title, pdf_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner = excluded.owner, title = excluded.title, pdf_url = excluded.pdf_url`),
		resume.ID, resume.Owner, resume.Title, resume.PDFURL)
	return apperr.Persistence("upsert resume", err)
}

// SetResumePDFURL records where the rendered PDF of a resume lives.
func (s *SQLStore) SetResumePDFURL(ctx context.Context, owner, id, url string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE resumes SET pdf_url = ? WHERE id = ? AND owner = ?`), url, id, owner)
	if err != nil {
		return apperr.Persistence("set resume pdf url", err)
	}
	return expectOne("set resume pdf url "+id, res)
}
