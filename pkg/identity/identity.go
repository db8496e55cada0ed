// Package identity turns bearer tokens into verified identities. It does not
// implement an authentication protocol; it verifies tokens issued by an
// external OpenID Connect provider.
package identity

import (
	"context"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
)

// Identity is the verified claim set of a caller
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// Authenticator verifies a bearer token
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context, token string) (*Identity, error)

// Authenticate implements Authenticator
func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// StaticAuthenticator maps fixed tokens to identities. It is meant for
// local development and tests.
type StaticAuthenticator struct {
	tokens map[string]Identity
}

// NewStaticAuthenticator creates an authenticator over a token table
func NewStaticAuthenticator(tokens map[string]Identity) *StaticAuthenticator {
	copied := make(map[string]Identity, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticAuthenticator{tokens: copied}
}

// ParseStaticTokens reads "token=email" pairs separated by commas
func ParseStaticTokens(spec string) (map[string]Identity, error) {
	tokens := make(map[string]Identity)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, email, ok := strings.Cut(pair, "=")
		if !ok || token == "" || email == "" {
			return nil, apperrors.Configuration("invalid static token entry %q", pair)
		}
		tokens[token] = Identity{Subject: email, Email: email}
	}
	return tokens, nil
}

// Authenticate implements Authenticator
func (s *StaticAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	id, ok := s.tokens[token]
	if !ok {
		return nil, apperrors.Authentication("invalid token")
	}
	return &id, nil
}
