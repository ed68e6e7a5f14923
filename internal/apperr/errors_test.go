package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", NewValidationError("to", "no recipient"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("send: %w", NewValidationError("to", "no recipient")), http.StatusBadRequest},
		{"credential", NewCredentialError("c1", "no refresh token"), http.StatusUnauthorized},
		{"not found", fmt.Errorf("job j1: %w", ErrNotFound), http.StatusNotFound},
		{"transport", &TransportError{Op: "gmail.send", Status: 503}, http.StatusBadGateway},
		{"persistence", Persistence("insert", errors.New("disk full")), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestCredentialErrorMessage(t *testing.T) {
	err := &CredentialError{Reason: "refresh failed", ProviderStatus: 400, Body: `{"error":"invalid_grant"}`}
	assert.Equal(t, `credential error: refresh failed: provider status 400: {"error":"invalid_grant"}`, err.Error())

	err = NewCredentialError("cred-1", "no refresh token")
	assert.Equal(t, "credential error: no refresh token (credential cred-1)", err.Error())
}

func TestPersistenceKeepsNotFound(t *testing.T) {
	err := Persistence("get job", ErrNotFound)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsPersistence(err))
	assert.Equal(t, "not_found", Code(err))
	assert.Nil(t, Persistence("noop", nil))
}

func TestTransportErrorMessage(t *testing.T) {
	err := &TransportError{Op: "gmail.get", Status: 404, Body: "Requested entity was not found."}
	assert.Equal(t, "transport error: gmail.get: status 404: Requested entity was not found.", err.Error())

	inner := errors.New("connection refused")
	err = &TransportError{Op: "gmail.list", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}
