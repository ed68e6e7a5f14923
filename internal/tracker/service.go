package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/gmail"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/logging"
	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/notify"
	"github.com/teemow/applytrack/internal/store"
)

// DefaultMaxCandidates is the fixed ceiling of messages one sync run looks at.
const DefaultMaxCandidates = 50

// Mailbox is the mail transport for one access token.
type Mailbox interface {
	Send(ctx context.Context, envelope string) (gmail.SentMessage, error)
	ListMessages(ctx context.Context, query string, limit int) ([]gmail.MessageRef, error)
	GetMessage(ctx context.Context, id string) (*model.InboundMessage, error)
}

// MailboxFunc opens a Mailbox for an access token.
type MailboxFunc func(ctx context.Context, accessToken string) (Mailbox, error)

// GmailMailboxes opens Gmail clients with opts.
func GmailMailboxes(opts gmail.Options) MailboxFunc {
	return func(ctx context.Context, accessToken string) (Mailbox, error) {
		c, err := gmail.NewClient(ctx, accessToken, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// TokenValidator makes a credential usable.
type TokenValidator interface {
	EnsureValid(ctx context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error)
}

// Documents renders and downloads resume PDFs.
type Documents interface {
	Render(ctx context.Context, owner, resumeID string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Notifier queues owner notifications.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) bool
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	// Notifier receives application.sent events. Nil disables notification.
	Notifier Notifier
	// Workers is the number of messages a sync run processes concurrently.
	Workers int
	// Query is the mailbox search used by sync.
	Query string
	// MaxCandidates caps the messages one sync run looks at.
	MaxCandidates int
	// AttachmentName is the file name of the attached resume.
	AttachmentName string
	Now            func() time.Time
}

// Service runs the send and sync workflows.
type Service struct {
	store     store.Store
	tokens    TokenValidator
	mailboxes MailboxFunc
	documents Documents

	notifier       Notifier
	logger         *slog.Logger
	metrics        *instrumentation.Metrics
	audit          *instrumentation.AuditLogger
	workers        int
	query          string
	maxCandidates  int
	attachmentName string
	now            func() time.Time
}

// NewService creates a Service.
func NewService(st store.Store, tokens TokenValidator, mailboxes MailboxFunc, documents Documents, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Query == "" {
		opts.Query = gmail.SentApplicationsQuery
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:          st,
		tokens:         tokens,
		mailboxes:      mailboxes,
		documents:      documents,
		notifier:       opts.Notifier,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		audit:          opts.Audit,
		workers:        opts.Workers,
		query:          opts.Query,
		maxCandidates:  opts.MaxCandidates,
		attachmentName: opts.AttachmentName,
		now:            opts.Now,
	}
}

// ListAccounts returns the owner's linked Google accounts without tokens.
func (s *Service) ListAccounts(ctx context.Context, owner string) ([]model.LinkedAccount, error) {
	if owner == "" {
		return nil, apperr.NewValidationError("owner", "owner is required")
	}
	creds, err := s.store.ListCredentials(ctx, owner, model.ProviderGoogle)
	if err != nil {
		return nil, err
	}
	accounts := make([]model.LinkedAccount, 0, len(creds))
	for i := range creds {
		accounts = append(accounts, creds[i].Account())
	}
	return accounts, nil
}

// UnlinkAccount deletes the owner's credential id. Mail already recorded
// through it is kept.
func (s *Service) UnlinkAccount(ctx context.Context, owner, id string) (err error) {
	run := instrumentation.NewWorkflowRun(instrumentation.WorkflowUnlink, owner).WithSpanContext(ctx)
	run.CredentialID = id
	defer func() { s.audit.LogWorkflow(run.Complete(err)) }()

	if owner == "" {
		return apperr.NewValidationError("owner", "owner is required")
	}
	if err := s.store.DeleteCredential(ctx, owner, id); err != nil {
		return fmt.Errorf("unlinking account: %w", err)
	}
	s.logger.Info("mailbox unlinked", logging.OwnerHash(owner), logging.Credential(id))
	return nil
}
