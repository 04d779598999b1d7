package ratelimit

import (
	"fmt"
	"time"

	"github.com/mozilla-ai/mcprt/internal/config"
)

// Option defines a functional option for configuring Options.
type Option func(*Options) error

// Options contains optional configuration for a Limiter.
type Options struct {
	// Requests is the number of requests allowed per key in one window.
	Requests int

	// Window is the window size. Windows are aligned to multiples of Window since the Unix epoch.
	Window time.Duration

	Clock func() time.Time
}

// NewOptions creates Options with optional configurations applied.
func NewOptions(opts ...Option) (Options, error) {
	options := Options{
		Requests: config.DefaultRateRequests,
		Window:   config.DefaultRateWindow,
		Clock:    time.Now,
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

// WithLimit sets the number of requests allowed per window.
func WithLimit(requests int, window time.Duration) Option {
	return func(o *Options) error {
		if requests <= 0 {
			return fmt.Errorf("requests per window must be positive")
		}
		if window <= 0 {
			return fmt.Errorf("window must be positive")
		}
		o.Requests = requests
		o.Window = window
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
