package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAuthenticator(t *testing.T) {
	auth := NewStaticAuthenticator(map[string]Identity{
		"tok-1": {Subject: "u1", Email: "u1@example.com"},
	})

	id, err := auth.Authenticate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", id.Email)

	_, err = auth.Authenticate(context.Background(), "nope")
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
}

func TestParseStaticTokens(t *testing.T) {
	tokens, err := ParseStaticTokens("a=alice@example.com, b=bob@example.com,")
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
	assert.Equal(t, "bob@example.com", tokens["b"].Email)

	_, err = ParseStaticTokens("broken")
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
}

func TestCachingAuthenticator(t *testing.T) {
	var calls int32
	next := AuthenticatorFunc(func(_ context.Context, token string) (*Identity, error) {
		atomic.AddInt32(&calls, 1)
		if token == "bad" {
			return nil, apperrors.Authentication("invalid token")
		}
		return &Identity{Subject: token, Email: token + "@example.com"}, nil
	})
	c := NewCachingAuthenticator(next, CacheConfig{Size: 8, TTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := c.Authenticate(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "good@example.com", id.Email)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)

	t.Run("failures are not cached", func(t *testing.T) {
		before := atomic.LoadInt32(&calls)
		_, err := c.Authenticate(ctx, "bad")
		require.Error(t, err)
		_, err = c.Authenticate(ctx, "bad")
		require.Error(t, err)
		assert.Equal(t, before+2, atomic.LoadInt32(&calls))
	})

	t.Run("callers cannot mutate the cache", func(t *testing.T) {
		id, err := c.Authenticate(ctx, "good")
		require.NoError(t, err)
		id.Email = "tampered"
		again, err := c.Authenticate(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "good@example.com", again.Email)
	})

	t.Run("purge", func(t *testing.T) {
		before := atomic.LoadInt32(&calls)
		c.Purge()
		_, err := c.Authenticate(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, before+1, atomic.LoadInt32(&calls))
	})
}

func TestCachingAuthenticator_SharesInflight(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	next := AuthenticatorFunc(func(_ context.Context, token string) (*Identity, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Identity{Subject: token, Email: "x@example.com"}, nil
	})
	c := NewCachingAuthenticator(next, CacheConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Authenticate(context.Background(), "same")
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// newFakeIssuer serves OIDC discovery and a userinfo endpoint that accepts
// one access token
func newFakeIssuer(t *testing.T, accessToken string, userinfo map[string]interface{}) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/authorize",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/jwks",
			"userinfo_endpoint":                     srv.URL + "/userinfo",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[]}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+accessToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userinfo)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOIDCConfig_Validate(t *testing.T) {
	assert.Error(t, OIDCConfig{ClientID: "c"}.Validate())
	assert.Error(t, OIDCConfig{IssuerURL: "https://issuer"}.Validate())
	assert.NoError(t, OIDCConfig{IssuerURL: "https://issuer", ClientID: "c"}.Validate())

	_, err := NewOIDCAuthenticator(context.Background(), OIDCConfig{})
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
}

func TestOIDCAuthenticator(t *testing.T) {
	srv := newFakeIssuer(t, "opaque-token", map[string]interface{}{
		"sub":            "user-1",
		"email":          "alice@example.com",
		"email_verified": true,
		"name":           "Alice",
	})
	ctx := context.Background()

	t.Run("rejects unverifiable token", func(t *testing.T) {
		auth, err := NewOIDCAuthenticator(ctx, OIDCConfig{IssuerURL: srv.URL, ClientID: "tenantguard"})
		require.NoError(t, err)

		_, err = auth.Authenticate(ctx, "opaque-token")
		assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))

		_, err = auth.Authenticate(ctx, "")
		assert.Equal(t, "missing bearer token", apperrors.ReasonOf(err))
	})

	t.Run("userinfo fallback", func(t *testing.T) {
		auth, err := NewOIDCAuthenticator(ctx, OIDCConfig{IssuerURL: srv.URL, ClientID: "tenantguard", UserInfoFallback: true})
		require.NoError(t, err)

		id, err := auth.Authenticate(ctx, "opaque-token")
		require.NoError(t, err)
		assert.Equal(t, &Identity{Subject: "user-1", Email: "alice@example.com", Name: "Alice"}, id)

		_, err = auth.Authenticate(ctx, "someone-elses-token")
		assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
	})

	t.Run("discovery failure", func(t *testing.T) {
		_, err := NewOIDCAuthenticator(ctx, OIDCConfig{IssuerURL: srv.URL + "/missing", ClientID: "c"})
		assert.Error(t, err)
	})
}

func TestToIdentity(t *testing.T) {
	no := false
	tests := []struct {
		name    string
		subject string
		claims  tokenClaims
		wantErr bool
		want    string
	}{
		{"name claim", "s", tokenClaims{Email: "a@example.com", Name: "A"}, false, "A"},
		{"preferred username", "s", tokenClaims{Email: "a@example.com", PreferredUsername: "alice"}, false, "alice"},
		{"no subject", "", tokenClaims{Email: "a@example.com"}, true, ""},
		{"no email", "s", tokenClaims{}, true, ""},
		{"unverified email", "s", tokenClaims{Email: "a@example.com", EmailVerified: &no}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := toIdentity(tt.subject, tt.claims)
			if tt.wantErr {
				require.Error(t, err)
				var appErr *apperrors.Error
				assert.True(t, errors.As(err, &appErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.Name)
		})
	}
}
