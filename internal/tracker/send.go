package tracker

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/logging"
	"github.com/teemow/applytrack/internal/mailer"
	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/notify"
)

// SendRequest asks for one application email. Subject, Body and ToEmail
// are optional overrides. An empty SenderAccountID selects the owner's
// first linked Google account.
type SendRequest struct {
	JobID           string `json:"job_id"`
	ResumeID        string `json:"resume_id"`
	SenderAccountID string `json:"sender_account_id,omitempty"`
	Subject         string `json:"subject,omitempty"`
	Body            string `json:"body,omitempty"`
	ToEmail         string `json:"to_email,omitempty"`
}

// SentInfo describes the delivered message.
type SentInfo struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
}

// SendResult is returned once the message was accepted by Gmail.
// Application is nil if recording it failed; Warnings says why.
type SendResult struct {
	Success     bool                     `json:"success"`
	Message     SentInfo                 `json:"message"`
	Application *model.ApplicationRecord `json:"application,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
}

// SendApplication emails the resume for a job and records the application.
func (s *Service) SendApplication(ctx context.Context, owner string, req SendRequest) (result *SendResult, err error) {
	ctx, span := instrumentation.StartWorkflowSpan(ctx, instrumentation.WorkflowSend,
		instrumentation.NewSpanAttributeBuilder().WithOwnerHash(logging.Anonymize(owner)).Build()...)
	run := instrumentation.NewWorkflowRun(instrumentation.WorkflowSend, owner).WithSpanContext(ctx)
	logger := logging.WithOwner(logging.WithOperation(s.logger, instrumentation.WorkflowSend), owner)

	defer func() {
		instrumentation.EndSpan(span, err)
		s.audit.LogWorkflow(run.Complete(err))
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			logger.Warn("send failed", logging.Err(err))
		}
		s.metrics.RecordApplicationSent(ctx, status, run.Recipient)
	}()

	if owner == "" {
		return nil, apperr.NewValidationError("owner", "owner is required")
	}
	if req.JobID == "" {
		return nil, apperr.NewValidationError("job_id", "job is required")
	}
	if req.ResumeID == "" {
		return nil, apperr.NewValidationError("resume_id", "resume is required")
	}

	job, err := s.store.GetJob(ctx, owner, req.JobID)
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}
	resume, err := s.store.GetResume(ctx, owner, req.ResumeID)
	if err != nil {
		return nil, fmt.Errorf("loading resume: %w", err)
	}

	to := strings.TrimSpace(req.ToEmail)
	if to == "" {
		to = strings.TrimSpace(job.ContactEmail)
	}
	if !mailer.ValidRecipient(to) {
		return nil, apperr.NewValidationError("to", "no recipient")
	}
	run.Recipient = to

	cred, err := s.senderCredential(ctx, owner, req.SenderAccountID)
	if err != nil {
		return nil, err
	}
	run.CredentialID = cred.ID

	cred, err = s.tokens.EnsureValid(ctx, cred)
	if err != nil {
		return nil, err
	}

	pdf, err := s.attachment(ctx, logger, owner, resume)
	if err != nil {
		return nil, err
	}

	subject := req.Subject
	if strings.TrimSpace(subject) == "" {
		subject = defaultSubject(job)
	}
	body := req.Body
	if strings.TrimSpace(body) == "" {
		body = defaultBody(job, cred.DisplayName())
	}
	envelope, err := mailer.Compose(model.OutboundMessage{
		From:           cred.Email(),
		FromName:       cred.DisplayName(),
		To:             to,
		Subject:        subject,
		HTMLBody:       body,
		Attachment:     pdf,
		AttachmentName: s.attachmentName,
	})
	if err != nil {
		return nil, err
	}

	mailbox, err := s.mailboxes(ctx, cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("opening mailbox: %w", err)
	}
	sent, err := mailbox.Send(ctx, envelope)
	if err != nil {
		return nil, err
	}
	run.MessageID = sent.ID
	logger.Info("application sent", logging.MessageID(sent.ID), logging.Domain(to))

	result = &SendResult{
		Success: true,
		Message: SentInfo{ID: sent.ID, ThreadID: sent.ThreadID, To: to, Subject: subject},
	}
	warn := func(msg string, err error) {
		logger.Warn(msg, logging.MessageID(sent.ID), logging.Err(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	if _, err := s.store.SaveEmail(ctx, &model.EmailRecord{
		Owner:             owner,
		CredentialID:      cred.ID,
		ProviderMessageID: sent.ID,
		ThreadID:          sent.ThreadID,
		Direction:         model.DirectionSent,
		From:              cred.Email(),
		To:                to,
		Subject:           subject,
		Body:              body,
		ReceivedAt:        s.now(),
	}); err != nil {
		warn("failed to record sent message", err)
	}

	app := &model.ApplicationRecord{
		Owner:          owner,
		JobID:          job.ID,
		ResumeID:       resume.ID,
		Status:         model.StatusApplied,
		EmailMessageID: sent.ID,
		ThreadID:       sent.ThreadID,
		JobTitle:       job.Title,
		Company:        job.Company,
		JobURL:         job.URL,
		ContactEmail:   to,
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		warn("failed to record application", err)
		return result, nil
	}
	result.Application = app
	run.ApplicationID = app.ID

	if err := s.store.AppendEvent(ctx, &model.ApplicationEvent{
		ApplicationID:     &app.ID,
		Owner:             owner,
		Type:              model.EventSent,
		ProviderMessageID: sent.ID,
		Payload: model.Metadata{
			model.PayloadMessageID: sent.ID,
			model.PayloadThreadID:  sent.ThreadID,
			model.PayloadSubject:   subject,
			model.PayloadTo:        to,
		},
	}); err != nil {
		warn("failed to record sent event", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, notify.Event{
			Type:          notify.EventApplicationSent,
			Owner:         owner,
			ApplicationID: app.ID,
			JobID:         job.ID,
			MessageID:     sent.ID,
			Recipient:     to,
			Subject:       subject,
			OccurredAt:    s.now().UTC(),
		})
	}
	return result, nil
}

// senderCredential resolves the account to send from. A credential id that
// the owner does not hold is reported as a credential error.
func (s *Service) senderCredential(ctx context.Context, owner, id string) (*model.CredentialRecord, error) {
	if id != "" {
		cred, err := s.store.GetCredential(ctx, owner, id)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, &apperr.CredentialError{Reason: "sender account is not linked", CredentialID: id, Err: err}
		}
		if err != nil {
			return nil, fmt.Errorf("loading sender account: %w", err)
		}
		return cred, nil
	}

	creds, err := s.store.ListCredentials(ctx, owner, model.ProviderGoogle)
	if err != nil {
		return nil, fmt.Errorf("listing linked accounts: %w", err)
	}
	if len(creds) == 0 {
		return nil, apperr.NewCredentialError("", "no linked Google account")
	}
	return &creds[0], nil
}

// attachment renders the resume if it has no PDF yet and downloads it.
func (s *Service) attachment(ctx context.Context, logger *slog.Logger, owner string, resume *model.Resume) ([]byte, error) {
	url := resume.PDFURL
	if url == "" {
		var err error
		url, err = s.documents.Render(ctx, owner, resume.ID)
		if err != nil {
			return nil, fmt.Errorf("rendering resume: %w", err)
		}
		if err := s.store.SetResumePDFURL(ctx, owner, resume.ID, url); err != nil {
			logger.Warn("failed to record resume pdf url", slog.String("resume", resume.ID), logging.Err(err))
		}
	}
	pdf, err := s.documents.Download(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("downloading resume: %w", err)
	}
	return pdf, nil
}

func defaultSubject(job *model.Job) string {
	switch {
	case job.Title != "" && job.Company != "":
		return fmt.Sprintf("Application for %s at %s", job.Title, job.Company)
	case job.Title != "":
		return "Application for " + job.Title
	default:
		return "Job application"
	}
}

func defaultBody(job *model.Job, name string) string {
	position := "the open position"
	if job.Title != "" {
		position = "the position of " + html.EscapeString(job.Title)
	}
	if job.Company != "" {
		position += " at " + html.EscapeString(job.Company)
	}
	closing := "Kind regards"
	if name != "" {
		closing += ",<br>" + html.EscapeString(name)
	}
	return "<p>Dear Hiring Team,</p>" +
		"<p>Please find attached my application for " + position + ".</p>" +
		"<p>" + closing + "</p>"
}
