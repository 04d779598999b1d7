package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

func request(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/mcp/tools", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestNewAuthenticator_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewAuthenticator(config.AuthSection{Enabled: true, Mode: "magic"}, nil)
	require.ErrorIs(t, err, errors.ErrConfiguration)

	_, err = NewAuthenticator(config.AuthSection{Enabled: true, Mode: config.AuthModeBearer}, nil)
	require.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestAuthenticator_Disabled(t *testing.T) {
	t.Parallel()

	a, err := NewAuthenticator(config.AuthSection{}, nil)
	require.NoError(t, err)
	require.False(t, a.Enabled())

	p, err := a.Authenticate(request(nil))
	require.NoError(t, err)
	require.Equal(t, "anonymous", p.Subject)
}

func TestAuthenticator_APIKey(t *testing.T) {
	t.Parallel()

	a, err := NewAuthenticator(config.AuthSection{
		Enabled:     true,
		Mode:        config.AuthModeAPIKey,
		HeaderName:  "X-API-Key",
		APIKeys:     []string{"first-key", "second-key"},
		PublicPaths: []string{"/health"},
	}, nil)
	require.NoError(t, err)

	tests := []struct {
		name        string
		headers     map[string]string
		wantSubject string
		wantErr     string
	}{
		{name: "header", headers: map[string]string{"X-API-Key": "second-key"}, wantSubject: "api-key-1"},
		{name: "bearer fallback", headers: map[string]string{"Authorization": "Bearer first-key"}, wantSubject: "api-key-0"},
		{name: "missing", headers: nil, wantErr: "missing API key"},
		{name: "wrong", headers: map[string]string{"X-API-Key": "nope"}, wantErr: "invalid API key"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p, err := a.Authenticate(request(tc.headers))
			if tc.wantErr != "" {
				require.ErrorIs(t, err, errors.ErrAuthentication)
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantSubject, p.Subject)
			require.Equal(t, config.AuthModeAPIKey, p.Mode)
		})
	}

	require.True(t, a.IsPublic("/health"))
	require.False(t, a.IsPublic("/tools"))
	require.Empty(t, a.Challenge())
}

func TestAuthenticator_Bearer_Session(t *testing.T) {
	t.Parallel()

	store, clock := testStore(t)
	a, err := NewAuthenticator(config.AuthSection{Enabled: true, Mode: config.AuthModeBearer}, store)
	require.NoError(t, err)

	sess, err := store.Create("alice", nil)
	require.NoError(t, err)

	p, err := a.Authenticate(request(map[string]string{"Authorization": "Bearer " + sess.Token}))
	require.NoError(t, err)
	require.Equal(t, "alice", p.Subject)
	require.Equal(t, sess.ID, p.SessionID)

	_, err = a.Authenticate(request(map[string]string{"Authorization": "bearer unknown"}))
	require.ErrorIs(t, err, errors.ErrAuthentication)

	_, err = a.Authenticate(request(map[string]string{"Authorization": "Basic abc"}))
	require.ErrorContains(t, err, "missing bearer token")

	clock.Advance(time.Hour)
	_, err = a.Authenticate(request(map[string]string{"Authorization": "Bearer " + sess.Token}))
	require.ErrorContains(t, err, "token expired")
	require.Equal(t, `Bearer realm="mcprt"`, a.Challenge())
}

func TestAuthenticator_Bearer_JWT(t *testing.T) {
	t.Parallel()

	secret := "test-secret"
	a, err := NewAuthenticator(config.AuthSection{Enabled: true, Mode: config.AuthModeBearer, JWTSecret: secret}, nil)
	require.NoError(t, err)

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	valid := sign(jwt.RegisteredClaims{
		Subject:   "service-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, jwt.SigningMethodHS256, []byte(secret))

	p, err := a.Authenticate(request(map[string]string{"Authorization": "Bearer " + valid}))
	require.NoError(t, err)
	require.Equal(t, "service-a", p.Subject)
	require.Empty(t, p.SessionID)

	tests := map[string]string{
		"expired": sign(jwt.RegisteredClaims{
			Subject:   "service-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}, jwt.SigningMethodHS256, []byte(secret)),
		"wrong secret": sign(jwt.RegisteredClaims{
			Subject:   "service-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}, jwt.SigningMethodHS256, []byte("other")),
		"no expiry": sign(jwt.RegisteredClaims{Subject: "service-a"}, jwt.SigningMethodHS256, []byte(secret)),
		"no subject": sign(jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}, jwt.SigningMethodHS256, []byte(secret)),
		"wrong algorithm": sign(jwt.RegisteredClaims{
			Subject:   "service-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}, jwt.SigningMethodHS512, []byte(secret)),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := a.Authenticate(request(map[string]string{"Authorization": "Bearer " + token}))
			require.ErrorIs(t, err, errors.ErrAuthentication)
		})
	}
}

func TestAuthenticator_Basic(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	a, err := NewAuthenticator(config.AuthSection{
		Enabled:    true,
		Mode:       config.AuthModeBasic,
		BasicUsers: map[string]string{"admin": string(hash)},
	}, nil)
	require.NoError(t, err)

	ok := request(nil)
	ok.SetBasicAuth("admin", "s3cret")
	p, err := a.Authenticate(ok)
	require.NoError(t, err)
	require.Equal(t, "admin", p.Subject)

	wrong := request(nil)
	wrong.SetBasicAuth("admin", "guess")
	_, err = a.Authenticate(wrong)
	require.ErrorIs(t, err, errors.ErrAuthentication)

	unknown := request(nil)
	unknown.SetBasicAuth("root", "s3cret")
	_, err = a.Authenticate(unknown)
	require.ErrorIs(t, err, errors.ErrAuthentication)

	_, err = a.Authenticate(request(nil))
	require.ErrorContains(t, err, "missing basic credentials")
	require.Equal(t, `Basic realm="mcprt"`, a.Challenge())
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	_, ok := PrincipalFromContext(context.Background())
	require.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Subject: "alice"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "alice", p.Subject)
}
