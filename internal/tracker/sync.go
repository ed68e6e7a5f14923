package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/correlate"
	"github.com/teemow/applytrack/internal/gmail"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/logging"
	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/store"
)

// MaxSamples is the number of per-message results a SyncResult carries.
const MaxSamples = 10

// MatchSample is the outcome for one synced message.
type MatchSample struct {
	MessageID     string       `json:"message_id"`
	Subject       string       `json:"subject"`
	ApplicationID string       `json:"application_id,omitempty"`
	MatchedBy     string       `json:"matched_by,omitempty"`
	StatusHint    model.Status `json:"status_hint,omitempty"`
}

// SyncResult summarizes a sync run. Processed counts messages that were
// recorded, Skipped those already recorded by an earlier run and Failed
// those that could not be fetched or stored.
type SyncResult struct {
	Processed int           `json:"processed"`
	Matched   int           `json:"matched"`
	Unmatched int           `json:"unmatched"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Samples   []MatchSample `json:"samples"`
}

type candidate struct {
	credential *model.CredentialRecord
	mailbox    Mailbox
	ref        gmail.MessageRef
}

type outcome struct {
	kind   string
	sample MatchSample
}

// syncState is shared by the workers of one run. mu guards apps and
// serializes the bookkeeping for each message.
type syncState struct {
	mu   sync.Mutex
	apps []model.ApplicationRecord
	jobs []model.Job
}

// SyncInbox correlates recent application mail of every linked Google
// account of owner. A failing message is counted and skipped. An account
// whose token cannot be used is skipped while another account works; if none
// does, the first error is returned.
func (s *Service) SyncInbox(ctx context.Context, owner string) (result *SyncResult, err error) {
	start := time.Now()
	ctx, span := instrumentation.StartWorkflowSpan(ctx, instrumentation.WorkflowSync,
		instrumentation.NewSpanAttributeBuilder().WithOwnerHash(logging.Anonymize(owner)).Build()...)
	run := instrumentation.NewWorkflowRun(instrumentation.WorkflowSync, owner).WithSpanContext(ctx)
	logger := logging.WithOwner(logging.WithOperation(s.logger, instrumentation.WorkflowSync), owner)

	defer func() {
		instrumentation.EndSpan(span, err)
		if result != nil {
			run.Processed, run.Matched = result.Processed, result.Matched
		}
		s.audit.LogWorkflow(run.Complete(err))
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		s.metrics.RecordSyncRun(ctx, status, time.Since(start))
	}()

	if owner == "" {
		return nil, apperr.NewValidationError("owner", "owner is required")
	}

	candidates, err := s.collectCandidates(ctx, logger, owner)
	if err != nil {
		return nil, err
	}

	apps, err := s.store.ListApplications(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("loading applications: %w", err)
	}
	jobs, err := s.store.ListJobs(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("loading jobs: %w", err)
	}
	state := &syncState{apps: apps, jobs: jobs}

	outcomes := make([]outcome, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range candidates {
		g.Go(func() error {
			outcomes[i] = s.processMessage(gctx, logger, owner, state, candidates[i])
			return nil
		})
	}
	_ = g.Wait()

	result = &SyncResult{Samples: []MatchSample{}}
	for _, o := range outcomes {
		s.metrics.RecordSyncMessage(ctx, o.kind)
		switch o.kind {
		case instrumentation.SyncOutcomeMatched:
			result.Processed++
			result.Matched++
		case instrumentation.SyncOutcomeUnmatched:
			result.Processed++
			result.Unmatched++
		case instrumentation.SyncOutcomeSkipped:
			result.Skipped++
			continue
		default:
			result.Failed++
			continue
		}
		if len(result.Samples) < MaxSamples {
			result.Samples = append(result.Samples, o.sample)
		}
	}

	logger.Info("inbox synced",
		slog.Int("candidates", len(candidates)),
		slog.Int("processed", result.Processed),
		slog.Int("matched", result.Matched),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}

// collectCandidates lists messages across the owner's accounts until the
// per-run ceiling is reached.
func (s *Service) collectCandidates(ctx context.Context, logger *slog.Logger, owner string) ([]candidate, error) {
	creds, err := s.store.ListCredentials(ctx, owner, model.ProviderGoogle)
	if err != nil {
		return nil, fmt.Errorf("listing linked accounts: %w", err)
	}
	if len(creds) == 0 {
		return nil, apperr.NewCredentialError("", "no linked Google account")
	}

	var (
		candidates []candidate
		firstErr   error
		usable     int
	)
	for i := range creds {
		remaining := s.maxCandidates - len(candidates)
		if remaining <= 0 {
			break
		}

		mailbox, cred, err := s.openMailbox(ctx, &creds[i])
		if err == nil {
			var refs []gmail.MessageRef
			refs, err = mailbox.ListMessages(ctx, s.query, remaining)
			for _, ref := range refs {
				candidates = append(candidates, candidate{credential: cred, mailbox: mailbox, ref: ref})
			}
		}
		if err != nil {
			logger.Warn("skipping account", logging.Credential(creds[i].ID), logging.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		usable++
	}

	if usable == 0 {
		return nil, firstErr
	}
	return candidates, nil
}

func (s *Service) openMailbox(ctx context.Context, rec *model.CredentialRecord) (Mailbox, *model.CredentialRecord, error) {
	cred, err := s.tokens.EnsureValid(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	mailbox, err := s.mailboxes(ctx, cred.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("opening mailbox: %w", err)
	}
	return mailbox, cred, nil
}

// processMessage fetches one candidate and records it. The fetch runs
// unlocked; everything after it holds state.mu.
func (s *Service) processMessage(ctx context.Context, logger *slog.Logger, owner string, state *syncState, c candidate) outcome {
	msgLogger := logger.With(logging.MessageID(c.ref.ID), logging.Credential(c.credential.ID))
	ctx, span := instrumentation.StartSpan(ctx, "sync.message", instrumentation.NewSpanAttributeBuilder().
		WithCredential(c.credential.ID).
		WithMessageID(c.ref.ID).
		Build()...)
	defer span.End()

	msg, err := c.mailbox.GetMessage(ctx, c.ref.ID)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		msgLogger.Warn("failed to fetch message", logging.Err(err))
		return outcome{kind: instrumentation.SyncOutcomeFailed}
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	in := store.InboundRecord{Email: &model.EmailRecord{
		Owner:             owner,
		CredentialID:      c.credential.ID,
		ProviderMessageID: msg.ID,
		ThreadID:          msg.ThreadID,
		Direction:         model.DirectionReceived,
		From:              msg.From,
		To:                msg.To,
		Subject:           msg.Subject,
		Snippet:           msg.Snippet,
		Body:              msg.Body,
		ReceivedAt:        msg.Date,
	}}

	sample := MatchSample{MessageID: msg.ID, Subject: msg.Subject}
	payload := model.Metadata{
		model.PayloadMessageID: msg.ID,
		model.PayloadThreadID:  msg.ThreadID,
		model.PayloadSubject:   msg.Subject,
		model.PayloadSnippet:   msg.Snippet,
	}

	res := correlate.Correlate(*msg, state.apps, state.jobs)
	var app *model.ApplicationRecord
	if res.Matched() {
		app = res.Application
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithApplication(app.ID).Build()...)
		sample.ApplicationID = app.ID
		sample.MatchedBy = string(res.MatchedBy)
		sample.StatusHint = res.StatusHint
		payload[model.PayloadMatchedBy] = string(res.MatchedBy)
		in.Application, in.Events = matchUpdate(owner, app, msg, res, payload)
	} else {
		in.Events = []model.ApplicationEvent{{
			Owner:             owner,
			Type:              model.EventEmailReceived,
			ProviderMessageID: msg.ID,
			Payload:           payload,
		}}
	}

	created, err := s.store.RecordInbound(ctx, in)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		msgLogger.Warn("failed to record message", logging.Err(err))
		return outcome{kind: instrumentation.SyncOutcomeFailed}
	}
	if !created {
		msgLogger.Debug("message already recorded")
		return outcome{kind: instrumentation.SyncOutcomeSkipped}
	}

	if app == nil {
		return outcome{kind: instrumentation.SyncOutcomeUnmatched, sample: sample}
	}
	if in.Application != nil {
		// Later messages of this run correlate against the committed state.
		*app = *in.Application
	}
	msgLogger.Debug("message matched",
		logging.Application(app.ID),
		slog.String("matched_by", string(res.MatchedBy)),
		logging.Status(string(app.Status)))
	return outcome{kind: instrumentation.SyncOutcomeMatched, sample: sample}
}

// matchUpdate returns the updated copy of app (nil when nothing changed)
// and the events a matched message produces.
func matchUpdate(owner string, app *model.ApplicationRecord, msg *model.InboundMessage,
	res correlate.Result, payload model.Metadata) (*model.ApplicationRecord, []model.ApplicationEvent) {
	updated := *app
	if updated.ThreadID == "" {
		updated.ThreadID = msg.ThreadID
	}
	if updated.EmailMessageID == "" {
		updated.EmailMessageID = msg.ID
	}
	statusChanged := res.StatusHint.Valid() && res.StatusHint != app.Status
	if statusChanged {
		updated.Status = res.StatusHint
	}

	events := []model.ApplicationEvent{{
		ApplicationID:     &app.ID,
		Owner:             owner,
		Type:              model.EventEmailReceived,
		ProviderMessageID: msg.ID,
		Payload:           payload,
	}}
	if statusChanged {
		events = append(events, model.ApplicationEvent{
			ApplicationID:     &app.ID,
			Owner:             owner,
			Type:              model.EventStatusChange,
			ProviderMessageID: msg.ID,
			Payload: model.Metadata{
				model.PayloadMessageID:  msg.ID,
				model.PayloadFromStatus: string(app.Status),
				model.PayloadToStatus:   string(updated.Status),
				model.PayloadMatchedBy:  string(res.MatchedBy),
			},
		})
	}
	if updated == *app {
		return nil, events
	}
	return &updated, events
}
