// Package auth authenticates HTTP requests and owns the session store.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

const bearerPrefix = "Bearer "

// Principal is the authenticated caller of a request.
type Principal struct {
	// Subject identifies the caller: a user name, a JWT subject or an API key label.
	Subject string

	// Mode is the auth mode that accepted the credential.
	Mode string

	// SessionID is set when a session token was presented.
	SessionID string
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator checks request credentials against the configured auth mode.
// NewAuthenticator should be used to create instances of Authenticator.
type Authenticator struct {
	cfg      config.AuthSection
	sessions *SessionStore
}

// NewAuthenticator creates an Authenticator. sessions is required in bearer mode.
func NewAuthenticator(cfg config.AuthSection, sessions *SessionStore) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfiguration, err)
	}
	if cfg.Enabled && cfg.Mode == config.AuthModeBearer && sessions == nil && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: bearer mode requires a session store or a JWT secret", errors.ErrConfiguration)
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = config.DefaultAuthHeader
	}

	return &Authenticator{cfg: cfg, sessions: sessions}, nil
}

// Enabled reports whether requests must be authenticated.
func (a *Authenticator) Enabled() bool {
	return a.cfg.Enabled
}

// IsPublic reports whether path, relative to the base path, skips authentication.
func (a *Authenticator) IsPublic(path string) bool {
	return slices.Contains(a.cfg.PublicPaths, path)
}

// Authenticate returns the principal for r, or an error wrapping errors.ErrAuthentication.
// When authentication is disabled every request is accepted anonymously.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	if !a.cfg.Enabled {
		return Principal{Subject: "anonymous"}, nil
	}

	switch a.cfg.Mode {
	case config.AuthModeAPIKey:
		return a.apiKey(r)
	case config.AuthModeBearer:
		return a.bearer(r)
	case config.AuthModeBasic:
		return a.basic(r)
	default:
		return Principal{}, fmt.Errorf("%w: unsupported auth mode '%s'", errors.ErrConfiguration, a.cfg.Mode)
	}
}

func (a *Authenticator) apiKey(r *http.Request) (Principal, error) {
	key := strings.TrimSpace(r.Header.Get(a.cfg.HeaderName))
	if key == "" {
		key, _ = bearerToken(r)
	}
	if key == "" {
		return Principal{}, fmt.Errorf("%w: missing API key", errors.ErrAuthentication)
	}

	for i, candidate := range a.cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			return Principal{Subject: fmt.Sprintf("api-key-%d", i), Mode: config.AuthModeAPIKey}, nil
		}
	}

	return Principal{}, fmt.Errorf("%w: invalid API key", errors.ErrAuthentication)
}

func (a *Authenticator) bearer(r *http.Request) (Principal, error) {
	token, ok := bearerToken(r)
	if !ok {
		return Principal{}, fmt.Errorf("%w: missing bearer token", errors.ErrAuthentication)
	}

	if a.sessions != nil {
		if _, known := a.sessions.Lookup(token); known {
			sess, err := a.sessions.ValidateToken(token, false)
			if err != nil {
				return Principal{}, err
			}
			return Principal{Subject: sess.Subject, Mode: config.AuthModeBearer, SessionID: sess.ID}, nil
		}
	}

	if a.cfg.JWTSecret != "" {
		return a.jwt(token)
	}

	return Principal{}, fmt.Errorf("%w: invalid bearer token", errors.ErrAuthentication)
}

func (a *Authenticator) jwt(token string) (Principal, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (any, error) { return []byte(a.cfg.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: invalid JWT: %v", errors.ErrAuthentication, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: JWT has no subject", errors.ErrAuthentication)
	}

	return Principal{Subject: claims.Subject, Mode: config.AuthModeBearer}, nil
}

func (a *Authenticator) basic(r *http.Request) (Principal, error) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return Principal{}, fmt.Errorf("%w: missing basic credentials", errors.ErrAuthentication)
	}

	hash, known := a.cfg.BasicUsers[user]
	if !known {
		return Principal{}, fmt.Errorf("%w: invalid credentials", errors.ErrAuthentication)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)); err != nil {
		return Principal{}, fmt.Errorf("%w: invalid credentials", errors.ErrAuthentication)
	}

	return Principal{Subject: user, Mode: config.AuthModeBasic}, nil
}

// Challenge returns the WWW-Authenticate header value for the configured mode.
func (a *Authenticator) Challenge() string {
	switch a.cfg.Mode {
	case config.AuthModeBasic:
		return `Basic realm="mcprt"`
	case config.AuthModeBearer:
		return `Bearer realm="mcprt"`
	default:
		return ""
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) <= len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(bearerPrefix):])
	return token, token != ""
}
