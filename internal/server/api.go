package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/logging"
	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/tracker"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Workflows is the part of tracker.Service the API exposes.
type Workflows interface {
	SendApplication(ctx context.Context, owner string, req tracker.SendRequest) (*tracker.SendResult, error)
	SyncInbox(ctx context.Context, owner string) (*tracker.SyncResult, error)
	ListAccounts(ctx context.Context, owner string) ([]model.LinkedAccount, error)
	UnlinkAccount(ctx context.Context, owner, id string) error
}

// Linker runs the OAuth consent flow for linking a mailbox.
type Linker interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, owner, code string) (*model.CredentialRecord, error)
}

// APIOptions configures an API.
type APIOptions struct {
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// API serves the applytrack HTTP endpoints.
type API struct {
	workflows Workflows
	linker    Linker
	auth      *Authenticator
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
}

// NewAPI creates an API.
func NewAPI(workflows Workflows, linker Linker, auth *Authenticator, opts APIOptions) *API {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &API{
		workflows: workflows,
		linker:    linker,
		auth:      auth,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
	}
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	owned := func(h http.HandlerFunc) http.Handler { return a.auth.RequireOwner(h) }

	mux.Handle("POST /api/applications/send", owned(a.handleSend))
	mux.Handle("POST /api/inbox/sync", owned(a.handleSync))
	mux.Handle("GET /api/google/connect", owned(a.handleConnect))
	mux.Handle("GET /api/accounts", owned(a.handleListAccounts))
	mux.Handle("DELETE /api/accounts/{id}", owned(a.handleUnlink))
	// The consent screen redirects the browser here without a bearer
	// token; the signed state names the owner instead.
	mux.HandleFunc("GET /api/google/callback", a.handleCallback)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status apperr assigns to err. Internal
// details of unexpected errors stay in the log.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.Code(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logging.Err(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.NewValidationError("body", "request body is required")
		}
		return apperr.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	return nil
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	var req tracker.SendRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	result, err := a.workflows.SendApplication(r.Context(), owner, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	result, err := a.workflows.SyncInbox(r.Context(), owner)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type connectResponse struct {
	URL string `json:"url"`
}

func (a *API) handleConnect(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	state, err := a.auth.IssueState(owner)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{URL: a.linker.AuthCodeURL(state)})
}

type callbackResponse struct {
	Account model.LinkedAccount `json:"account"`
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		a.metrics.RecordAccountLink(r.Context(), instrumentation.OAuthResultFailure)
		a.writeError(w, r, apperr.NewValidationError("code", "consent was not granted: "+reason))
		return
	}

	owner, err := a.auth.VerifyState(q.Get("state"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	run := instrumentation.NewWorkflowRun(instrumentation.WorkflowLink, owner).WithSpanContext(r.Context())
	rec, err := a.linker.Exchange(r.Context(), owner, q.Get("code"))
	if err == nil {
		run.CredentialID = rec.ID
	}
	a.audit.LogWorkflow(run.Complete(err))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	account := rec.Account()
	a.logger.Info("account linked",
		logging.OwnerHash(owner),
		logging.Credential(account.ID),
		slog.String("account_hash", logging.AnonymizeEmail(account.Email)))
	writeJSON(w, http.StatusOK, callbackResponse{Account: account})
}

type accountsResponse struct {
	Accounts []model.LinkedAccount `json:"accounts"`
}

func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	accounts, err := a.workflows.ListAccounts(r.Context(), owner)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountsResponse{Accounts: accounts})
}

func (a *API) handleUnlink(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	if err := a.workflows.UnlinkAccount(r.Context(), owner, r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
