package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Option defines a functional option for configuring Options.
type Option func(*Options) error

// Options contains optional configuration for the Server.
// NewOptions should be used to create instances of Options.
type Options struct {
	// ServerID identifies this runtime instance in events and info responses.
	ServerID string

	// BuiltinHealthChecks controls registration of the state, metrics and handlers sub-checks.
	BuiltinHealthChecks bool

	// Clock returns the current time.
	Clock func() time.Time
}

// NewOptions creates Options with optional configurations applied.
func NewOptions(opts ...Option) (Options, error) {
	options := Options{
		ServerID:            uuid.NewString(),
		BuiltinHealthChecks: true,
		Clock:               time.Now,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&options); err != nil {
			return Options{}, err
		}
	}

	return options, nil
}

// WithServerID overrides the generated server identifier.
func WithServerID(id string) Option {
	return func(o *Options) error {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("server ID cannot be empty")
		}
		o.ServerID = id
		return nil
	}
}

// WithBuiltinHealthChecks enables or disables the default health sub-checks.
func WithBuiltinHealthChecks(enabled bool) Option {
	return func(o *Options) error {
		o.BuiltinHealthChecks = enabled
		return nil
	}
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		o.Clock = clock
		return nil
	}
}
