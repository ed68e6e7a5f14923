package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/teemow/applytrack/internal/apperr"
)

// stateAudience marks tokens minted as OAuth state. They are never accepted
// as bearer tokens.
const stateAudience = "applytrack:google-link"

// DefaultStateTTL bounds how long a consent round trip may take.
const DefaultStateTTL = 10 * time.Minute

type contextKey string

const ownerContextKey contextKey = "applytrack_owner"

// ErrUnauthenticated is returned when a request carries no usable owner
// token.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the owner of a request from an HS256 bearer token
// and signs the state parameter of the account linking flow.
type Authenticator struct {
	secret   []byte
	stateTTL time.Duration
	now      func() time.Time
}

// NewAuthenticator creates an Authenticator. A zero stateTTL selects
// DefaultStateTTL.
func NewAuthenticator(secret []byte, stateTTL time.Duration) *Authenticator {
	if stateTTL <= 0 {
		stateTTL = DefaultStateTTL
	}
	return &Authenticator{secret: secret, stateTTL: stateTTL, now: time.Now}
}

func (a *Authenticator) keyFunc(t *jwt.Token) (any, error) {
	return a.secret, nil
}

func (a *Authenticator) parser(opts ...jwt.ParserOption) *jwt.Parser {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	return jwt.NewParser(opts...)
}

// IssueToken signs an owner token valid for ttl. It is used by the CLI and
// by tests; production tokens normally come from the tracker frontend.
func (a *Authenticator) IssueToken(owner string, ttl time.Duration) (string, error) {
	if owner == "" {
		return "", apperr.NewValidationError("owner", "owner is required")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyToken returns the owner named by a bearer token.
func (a *Authenticator) VerifyToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := a.parser().ParseWithClaims(raw, claims, a.keyFunc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	for _, aud := range claims.Audience {
		if aud == stateAudience {
			return "", fmt.Errorf("%w: state token used as bearer token", ErrUnauthenticated)
		}
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// IssueState signs the state parameter carrying owner through the consent
// screen.
func (a *Authenticator) IssueState(owner string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		Audience:  jwt.ClaimStrings{stateAudience},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyState returns the owner a state parameter was issued for.
func (a *Authenticator) VerifyState(state string) (string, error) {
	if state == "" {
		return "", apperr.NewValidationError("state", "state is required")
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := a.parser(jwt.WithAudience(stateAudience)).ParseWithClaims(state, claims, a.keyFunc); err != nil {
		return "", apperr.NewValidationError("state", "invalid or expired state")
	}
	if claims.Subject == "" {
		return "", apperr.NewValidationError("state", "state has no owner")
	}
	return claims.Subject, nil
}

// RequireOwner rejects requests without a valid bearer token and stores the
// owner in the request context.
func (a *Authenticator) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="applytrack"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token", Code: "unauthenticated"})
			return
		}
		owner, err := a.VerifyToken(raw)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="applytrack", error="invalid_token"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid bearer token", Code: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// WithOwner returns a context carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerContextKey, owner)
}

// OwnerFromContext returns the owner stored by RequireOwner.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerContextKey).(string)
	return owner, ok && owner != ""
}
