// Package auth resolves inbound HTTP requests into credentials for the
// action bridge. The bridge only ever needs an opaque principal reference
// for audit metadata; everything else about the credential stays inside
// whatever backend issued it.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// PrincipalKind discriminates the principal union carried by a Credential.
type PrincipalKind string

const (
	// UserPrincipal is a human subject with a display reference.
	UserPrincipal PrincipalKind = "user"

	// ServicePrincipal is a machine identity; it may have no
	// human-readable reference at all.
	ServicePrincipal PrincipalKind = "service"
)

// Principal is the typed identity behind a credential.
type Principal struct {
	Kind PrincipalKind
	// Subject is the stable reference for the principal, e.g. a login or
	// service account id. May be empty for service credentials.
	Subject string
}

// Display returns a human-readable reference for audit records. It never
// fails: credentials without a subject report their kind instead.
func (p Principal) Display() string {
	if p.Subject != "" {
		return p.Subject
	}
	if p.Kind == "" {
		return "unknown"
	}
	return string(p.Kind)
}

// Credential is the opaque identity a transport holds for the lifetime of
// one connection. It is immutable once issued and is never persisted.
type Credential struct {
	Principal Principal
	// Token is the raw secret forwarded to the actions backend. Not
	// included in any audit or log output.
	Token string
}

// Authenticator resolves a credential from an inbound request.
type Authenticator interface {
	Credentials(r *http.Request) (*Credential, error)
}

// ErrUnauthorized is returned when a request carries no resolvable identity.
var ErrUnauthorized = errors.New("unauthorized: no valid credentials")

// TokenAuthenticator resolves bearer tokens against a static table. It
// exists for wiring and tests; production deployments plug in their own
// Authenticator.
type TokenAuthenticator struct {
	// Tokens maps an accepted token to the principal it authenticates.
	Tokens map[string]Principal
}

// NewTokenAuthenticator constructs a TokenAuthenticator over the given
// token table.
func NewTokenAuthenticator(tokens map[string]Principal) *TokenAuthenticator {
	if tokens == nil {
		tokens = make(map[string]Principal)
	}
	return &TokenAuthenticator{Tokens: tokens}
}

// Credentials extracts a bearer token from the Authorization header (or the
// X-Api-Key header as a fallback) and looks it up in the table.
func (a *TokenAuthenticator) Credentials(r *http.Request) (*Credential, error) {
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if token == "" {
		token = r.Header.Get("X-Api-Key")
	}
	if token == "" {
		return nil, ErrUnauthorized
	}
	principal, ok := a.Tokens[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &Credential{Principal: principal, Token: token}, nil
}
