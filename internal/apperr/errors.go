// Package apperr defines the error taxonomy shared by the mail workflows.
//
// Credential and validation errors are terminal for a workflow and are shown
// to the user. Transport errors are terminal for the call that produced them.
// Persistence errors are fatal only for the record that failed to persist.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by stores when a record does not exist or does not
// belong to the requesting owner.
var ErrNotFound = errors.New("not found")

// CredentialError means a linked mailbox cannot be used until the owner
// links it again.
type CredentialError struct {
	Reason         string // e.g. "no refresh token", "refresh failed"
	CredentialID   string
	ProviderStatus int    // HTTP status from the token endpoint, 0 if none
	Body           string // token endpoint response body, if any
	Err            error
}

func (e *CredentialError) Error() string {
	msg := "credential error: " + e.Reason
	if e.CredentialID != "" {
		msg += " (credential " + e.CredentialID + ")"
	}
	if e.ProviderStatus != 0 {
		msg += fmt.Sprintf(": provider status %d", e.ProviderStatus)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil && e.ProviderStatus == 0 {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

// NewCredentialError creates a CredentialError without provider details.
func NewCredentialError(credentialID, reason string) *CredentialError {
	return &CredentialError{Reason: reason, CredentialID: credentialID}
}

// ValidationError means the caller supplied unusable input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// TransportError is a non-2xx answer from an external HTTP API.
type TransportError struct {
	Op     string // e.g. "gmail.send"
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport error: %s", e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Status == 0 && e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError is a datastore failure for a single record.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError. It returns nil for a nil err
// and leaves ErrNotFound recognizable through errors.Is.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsCredential reports whether err (or any error in its chain) is a CredentialError.
func IsCredential(err error) bool {
	var target *CredentialError
	return errors.As(err, &target)
}

// IsValidation reports whether err (or any error in its chain) is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsTransport reports whether err (or any error in its chain) is a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsPersistence reports whether err (or any error in its chain) is a PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

// Code returns a short machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation_error"
	case IsCredential(err):
		return "credential_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case IsTransport(err):
		return "transport_error"
	case IsPersistence(err):
		return "persistence_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err to the status code an API handler should answer with.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "validation_error":
		return http.StatusBadRequest
	case "credential_error":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "transport_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
