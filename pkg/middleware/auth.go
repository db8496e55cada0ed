package middleware

import (
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/identity"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/orgs"
)

// AuthMiddleware verifies the bearer token, records the principal through
// the directory and puts the principal id in the request context
type AuthMiddleware struct {
	authenticator identity.Authenticator
	directory     orgs.Directory
	// deferErrors passes failed requests through with the error in context,
	// so handlers that must audit every attempt can answer themselves
	deferErrors bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator identity.Authenticator, directory orgs.Directory, deferErrors bool) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		directory:     directory,
		deferErrors:   deferErrors,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principalID, err := m.authenticate(r)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Debug("authentication failed")
			if m.deferErrors {
				next.ServeHTTP(w, r.WithContext(contextkeys.WithAuthError(ctx, err)))
				return
			}
			httputil.WriteError(w, err)
			return
		}

		ctx = contextkeys.WithPrincipalID(ctx, principalID)
		ctx = observability.WithLogger(ctx, observability.FromContext(ctx).WithField("principal_id", principalID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (int64, error) {
	token, err := httputil.BearerToken(r)
	if err != nil {
		return 0, err
	}
	id, err := m.authenticator.Authenticate(r.Context(), token)
	if err != nil {
		return 0, err
	}
	principal, err := m.directory.SignIn(r.Context(), orgs.SignInRequest{
		Email:       id.Email,
		DisplayName: id.Name,
		Subject:     id.Subject,
	})
	if err != nil {
		return 0, err
	}
	return principal.ID, nil
}
