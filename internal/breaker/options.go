package breaker

import (
	"fmt"
	"time"
)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
	DefaultMonitoringPeriod = 10 * time.Second
	DefaultSuccessThreshold = 3
)

// Option defines a functional option for configuring Options.
type Option func(*Options) error

// Options contains optional configuration for a Breaker.
// NewOptions should be used to create instances of Options.
type Options struct {
	// FailureThreshold is the number of failures that trip the breaker open.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open after the last failure
	// before a trial call is let through.
	ResetTimeout time.Duration

	// MonitoringPeriod is how long after the last failure the failure count is forgotten.
	MonitoringPeriod time.Duration

	// SuccessThreshold is the number of consecutive half-open successes that close the breaker.
	SuccessThreshold int

	// OnStateChange is called after every transition, outside the breaker's lock.
	OnStateChange func(from State, to State)

	// Clock returns the current time.
	Clock func() time.Time
}

// NewOptions creates Options with optional configurations applied.
func NewOptions(opts ...Option) (Options, error) {
	options := Options{
		FailureThreshold: DefaultFailureThreshold,
		ResetTimeout:     DefaultResetTimeout,
		MonitoringPeriod: DefaultMonitoringPeriod,
		SuccessThreshold: DefaultSuccessThreshold,
		Clock:            time.Now,
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

func WithFailureThreshold(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return fmt.Errorf("failure threshold must be positive, got %d", n)
		}
		o.FailureThreshold = n
		return nil
	}
}

func WithResetTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("reset timeout must be positive, got %v", d)
		}
		o.ResetTimeout = d
		return nil
	}
}

func WithMonitoringPeriod(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("monitoring period must be positive, got %v", d)
		}
		o.MonitoringPeriod = d
		return nil
	}
}

func WithSuccessThreshold(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return fmt.Errorf("success threshold must be positive, got %d", n)
		}
		o.SuccessThreshold = n
		return nil
	}
}

// WithStateChangeHook registers a callback for state transitions.
func WithStateChangeHook(fn func(from State, to State)) Option {
	return func(o *Options) error {
		o.OnStateChange = fn
		return nil
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		o.Clock = clock
		return nil
	}
}
