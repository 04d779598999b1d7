package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Option defines a functional option for configuring Options.
// Options are applied in order, with later options overriding earlier ones.
type Option func(*Options) error

// Options contains optional configuration for the Collector.
// NewOptions should be used to create instances of Options.
type Options struct {
	// ServiceName is attached to exported samples as the 'service' label.
	ServiceName string

	// MaxValues is the maximum number of values retained per metric.
	MaxValues int

	// Retention is how long values and snapshots are kept before cleanup prunes them.
	Retention time.Duration

	// CleanupInterval is how often the retention pass runs.
	CleanupInterval time.Duration

	// SnapshotInterval is how often a performance snapshot is recorded.
	SnapshotInterval time.Duration

	// MaxResponseTimes bounds the global response time sample list.
	MaxResponseTimes int

	// MaxSnapshots bounds the performance snapshot buffer.
	MaxSnapshots int

	// BackgroundTasks controls whether the cleanup and snapshot timers are started.
	BackgroundTasks bool

	// Clock returns the current time.
	Clock func() time.Time
}

// NewOptions creates Options with optional configurations applied.
func NewOptions(opts ...Option) (Options, error) {
	options := Options{
		ServiceName:      DefaultServiceName,
		MaxValues:        DefaultMaxValues,
		Retention:        DefaultRetention,
		CleanupInterval:  DefaultCleanupInterval,
		SnapshotInterval: DefaultSnapshotInterval,
		MaxResponseTimes: DefaultMaxResponseTimes,
		MaxSnapshots:     DefaultMaxSnapshots,
		BackgroundTasks:  true,
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

const (
	DefaultServiceName      = "mcprt"
	DefaultMaxValues        = 10_000
	DefaultRetention        = time.Hour
	DefaultCleanupInterval  = 5 * time.Minute
	DefaultSnapshotInterval = 30 * time.Second
	DefaultMaxResponseTimes = 1_000
	DefaultMaxSnapshots     = 1_000
)

// WithServiceName sets the service label for exported samples.
func WithServiceName(name string) Option {
	return func(o *Options) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("service name cannot be empty")
		}
		o.ServiceName = name
		return nil
	}
}

// WithMaxValues sets the per-metric retained value count.
func WithMaxValues(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return fmt.Errorf("max values must be positive, got %d", n)
		}
		o.MaxValues = n
		return nil
	}
}

// WithRetention sets the retention window.
func WithRetention(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("retention must be positive, got %v", d)
		}
		o.Retention = d
		return nil
	}
}

// WithCleanupInterval sets how often cleanup runs.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("cleanup interval must be positive, got %v", d)
		}
		o.CleanupInterval = d
		return nil
	}
}

// WithSnapshotInterval sets how often performance snapshots are recorded.
func WithSnapshotInterval(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("snapshot interval must be positive, got %v", d)
		}
		o.SnapshotInterval = d
		return nil
	}
}

// WithMaxResponseTimes bounds the response time sample list.
func WithMaxResponseTimes(n int) Option {
	return func(o *Options) error {
		if n < 2 {
			return fmt.Errorf("max response times must be at least 2, got %d", n)
		}
		o.MaxResponseTimes = n
		return nil
	}
}

// WithMaxSnapshots bounds the snapshot buffer.
func WithMaxSnapshots(n int) Option {
	return func(o *Options) error {
		if n < 2 {
			return fmt.Errorf("max snapshots must be at least 2, got %d", n)
		}
		o.MaxSnapshots = n
		return nil
	}
}

// WithBackgroundTasks enables or disables the cleanup and snapshot timers.
func WithBackgroundTasks(enabled bool) Option {
	return func(o *Options) error {
		o.BackgroundTasks = enabled
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
