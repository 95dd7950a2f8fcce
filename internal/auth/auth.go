// Package auth authenticates bearer tokens of the write-back API and checks
// their record scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Scopes understood by the write-back API.
const (
	ScopeRecordsRead  = "records:ro"
	ScopeRecordsWrite = "records:rw"
	ScopeAll          = "*"
)

var (
	errNoHeader   = errors.New("missing Authorization header")
	errNotBearer  = errors.New("authorization scheme must be Bearer")
	errEmptyToken = errors.New("missing bearer token")
)

// TokenConfig is a bearer token with a set of scopes. Name labels the token
// in logs; the token itself is never logged.
type TokenConfig struct {
	Name   string
	Token  string
	Scopes []string
}

// Principal is an authenticated caller, typically a job service writing a
// result back.
type Principal struct {
	Name   string
	scopes map[string]bool
}

// Can reports whether p holds scope. records:rw implies records:ro and "*"
// grants everything.
func (p Principal) Can(scope string) bool {
	switch {
	case p.scopes[ScopeAll], p.scopes[scope]:
		return true
	case scope == ScopeRecordsRead:
		return p.scopes[ScopeRecordsWrite]
	}
	return false
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ExtractBearerToken reads the token of an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errNoHeader
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// Authenticate matches a presented token against the configured tokens.
// Every configured token is compared so the time taken does not depend on
// which one matched.
func Authenticate(presented string, tokens []TokenConfig) (Principal, bool) {
	match := -1
	for i, t := range tokens {
		if t.Token == "" || presented == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(t.Token)) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return Principal{}, false
	}

	t := tokens[match]
	p := Principal{Name: t.Name, scopes: make(map[string]bool, len(t.Scopes))}
	for _, s := range t.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			p.scopes[s] = true
		}
	}
	return p, true
}

// HasAnyScope reports whether p can act under at least one of required.
func HasAnyScope(p Principal, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	for _, s := range required {
		if p.Can(s) {
			return true
		}
	}
	return false
}
