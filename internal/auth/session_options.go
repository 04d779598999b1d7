package auth

import (
	"fmt"
	"time"

	"github.com/mozilla-ai/mcprt/internal/config"
)

// SessionOption defines a functional option for configuring SessionOptions.
type SessionOption func(*SessionOptions) error

// SessionOptions contains optional configuration for a SessionStore.
type SessionOptions struct {
	// AccessTTL is the lifetime of an access token.
	AccessTTL time.Duration

	// RefreshTTL is the lifetime of the session's refresh token, and so of the session itself.
	RefreshTTL time.Duration

	Clock func() time.Time
}

// NewSessionOptions creates SessionOptions with optional configurations applied.
func NewSessionOptions(opts ...SessionOption) (SessionOptions, error) {
	options := SessionOptions{
		AccessTTL:  config.DefaultAccessTTL,
		RefreshTTL: config.DefaultRefreshTTL,
		Clock:      time.Now,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&options); err != nil {
			return SessionOptions{}, err
		}
	}

	if options.RefreshTTL < options.AccessTTL {
		return SessionOptions{}, fmt.Errorf("refresh TTL (%s) cannot be shorter than access TTL (%s)", options.RefreshTTL, options.AccessTTL)
	}

	return options, nil
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) SessionOption {
	return func(o *SessionOptions) error {
		if d <= 0 {
			return fmt.Errorf("access TTL must be positive")
		}
		o.AccessTTL = d
		return nil
	}
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(d time.Duration) SessionOption {
	return func(o *SessionOptions) error {
		if d <= 0 {
			return fmt.Errorf("refresh TTL must be positive")
		}
		o.RefreshTTL = d
		return nil
	}
}

// WithSessionClock replaces the time source.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(o *SessionOptions) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		o.Clock = clock
		return nil
	}
}
