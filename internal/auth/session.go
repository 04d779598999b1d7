package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mozilla-ai/mcprt/internal/errors"
)

// Session binds issued tokens to an identity.
type Session struct {
	ID               string
	Subject          string
	Token            string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
	LastActivity     time.Time
	Metadata         map[string]string
}

func (s *Session) clone() Session {
	out := *s
	out.Metadata = maps.Clone(s.Metadata)
	return out
}

// SessionStore owns the session records of one server instance.
// NewSessionStore should be used to create instances of SessionStore.
type SessionStore struct {
	opts SessionOptions

	mu        sync.Mutex
	sessions  map[string]*Session
	byToken   map[string]string
	byRefresh map[string]string
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore(opt ...SessionOption) (*SessionStore, error) {
	opts, err := NewSessionOptions(opt...)
	if err != nil {
		return nil, err
	}

	return &SessionStore{
		opts:      opts,
		sessions:  make(map[string]*Session),
		byToken:   make(map[string]string),
		byRefresh: make(map[string]string),
	}, nil
}

// Create starts a session for subject with fresh access and refresh tokens.
func (s *SessionStore) Create(subject string, metadata map[string]string) (Session, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Session{}, fmt.Errorf("%w: session subject cannot be empty", errors.ErrValidation)
	}

	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	refresh, err := newToken()
	if err != nil {
		return Session{}, err
	}

	now := s.opts.Clock()
	sess := &Session{
		ID:               uuid.NewString(),
		Subject:          subject,
		Token:            token,
		RefreshToken:     refresh,
		ExpiresAt:        now.Add(s.opts.AccessTTL),
		RefreshExpiresAt: now.Add(s.opts.RefreshTTL),
		CreatedAt:        now,
		LastActivity:     now,
		Metadata:         maps.Clone(metadata),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess
	s.byToken[token] = sess.ID
	s.byRefresh[refresh] = sess.ID

	return sess.clone(), nil
}

// Get returns the session with the given id.
func (s *SessionStore) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Lookup returns the session an access token belongs to, without checking expiry.
func (s *SessionStore) Lookup(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return Session{}, false
	}
	return s.sessions[id].clone(), true
}

// ValidateToken checks an access token.
// A live token touches the session and returns it.
// An expired token fails with errors.ErrAuthentication unless refresh is true, in which case
// a new token is minted for the same session and the old token stops being valid.
// Refreshing fails once the session's refresh window has passed.
func (s *SessionStore) ValidateToken(token string, refresh bool) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return Session{}, fmt.Errorf("%w: unknown token", errors.ErrAuthentication)
	}
	sess := s.sessions[id]
	now := s.opts.Clock()

	if now.Before(sess.ExpiresAt) {
		sess.LastActivity = now
		return sess.clone(), nil
	}

	if !refresh {
		return Session{}, fmt.Errorf("%w: token expired", errors.ErrAuthentication)
	}

	return s.rotateLocked(sess, now)
}

// Refresh mints a new access token using a session's refresh token.
func (s *SessionStore) Refresh(refreshToken string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRefresh[refreshToken]
	if !ok {
		return Session{}, fmt.Errorf("%w: unknown refresh token", errors.ErrAuthentication)
	}

	return s.rotateLocked(s.sessions[id], s.opts.Clock())
}

func (s *SessionStore) rotateLocked(sess *Session, now time.Time) (Session, error) {
	if !now.Before(sess.RefreshExpiresAt) {
		s.deleteLocked(sess)
		return Session{}, fmt.Errorf("%w: session expired", errors.ErrAuthentication)
	}

	token, err := newToken()
	if err != nil {
		return Session{}, err
	}

	delete(s.byToken, sess.Token)
	sess.Token = token
	sess.ExpiresAt = now.Add(s.opts.AccessTTL)
	sess.LastActivity = now
	s.byToken[token] = sess.ID

	return sess.clone(), nil
}

// Revoke deletes a session and all of its tokens. It reports whether the session existed.
func (s *SessionStore) Revoke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	s.deleteLocked(sess)
	return true
}

// Prune deletes sessions whose refresh window has passed and returns how many were removed.
func (s *SessionStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock()
	removed := 0
	for _, sess := range s.sessions {
		if !now.Before(sess.RefreshExpiresAt) {
			s.deleteLocked(sess)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) deleteLocked(sess *Session) {
	delete(s.byToken, sess.Token)
	delete(s.byRefresh, sess.RefreshToken)
	delete(s.sessions, sess.ID)
}

// newToken returns 32 random bytes, base64url encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
