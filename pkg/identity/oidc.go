package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
)

// OIDCConfig configures token verification against an issuer
type OIDCConfig struct {
	IssuerURL       string
	ClientID        string
	SkipIssuerCheck bool
	// UserInfoFallback accepts opaque access tokens by asking the
	// provider's userinfo endpoint when ID token verification fails
	UserInfoFallback bool
}

// Validate checks required settings
func (c OIDCConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}

// OIDCAuthenticator verifies ID tokens issued by an OpenID Connect provider
type OIDCAuthenticator struct {
	config   OIDCConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewOIDCAuthenticator discovers the provider and builds a verifier
func NewOIDCAuthenticator(ctx context.Context, config OIDCConfig) (*OIDCAuthenticator, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration("invalid OIDC config: %v", err)
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        config.ClientID,
		SkipIssuerCheck: config.SkipIssuerCheck,
	})

	return &OIDCAuthenticator{
		config:   config,
		provider: provider,
		verifier: verifier,
	}, nil
}

type tokenClaims struct {
	Email             string `json:"email"`
	EmailVerified     *bool  `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// Authenticate implements Authenticator
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperrors.Authentication("missing bearer token")
	}

	idToken, err := a.verifier.Verify(ctx, token)
	if err != nil {
		if a.config.UserInfoFallback {
			return a.fromUserInfo(ctx, token)
		}
		return nil, &apperrors.Error{Kind: apperrors.KindAuthentication, Reason: "invalid token", Err: err}
	}

	var claims tokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, &apperrors.Error{Kind: apperrors.KindAuthentication, Reason: "invalid token claims", Err: err}
	}
	return toIdentity(idToken.Subject, claims)
}

// fromUserInfo resolves an opaque access token through the userinfo endpoint
func (a *OIDCAuthenticator) fromUserInfo(ctx context.Context, token string) (*Identity, error) {
	info, err := a.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	if err != nil {
		return nil, &apperrors.Error{Kind: apperrors.KindAuthentication, Reason: "invalid token", Err: err}
	}

	var claims tokenClaims
	if err := info.Claims(&claims); err != nil {
		return nil, &apperrors.Error{Kind: apperrors.KindAuthentication, Reason: "invalid token claims", Err: err}
	}
	if claims.Email == "" {
		claims.Email = info.Email
	}
	return toIdentity(info.Subject, claims)
}

func toIdentity(subject string, claims tokenClaims) (*Identity, error) {
	if subject == "" {
		return nil, apperrors.Authentication("token has no subject")
	}
	if claims.Email == "" {
		return nil, apperrors.Authentication("token has no email")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, apperrors.Authentication("email not verified")
	}
	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	return &Identity{Subject: subject, Email: claims.Email, Name: name}, nil
}
