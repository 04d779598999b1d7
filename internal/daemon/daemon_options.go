package daemon

import (
	"fmt"
	"strings"
	"time"

	"github.com/mozilla-ai/mcprt/internal/core"
)

// Options contains optional configuration for the daemon.
// NewOptions should be used to create instances of Options.
type Options struct {
	// APIOptions contains functional options for the API server.
	// They are applied after the options derived from configuration.
	APIOptions []APIOption

	// BuiltinHandlers controls registration of the runtime_health and runtime_metrics handlers.
	BuiltinHandlers bool

	// Handlers are registered with the server core before it starts.
	Handlers []core.Registration

	// MaintenanceInterval specifies how often expired sessions and rate limit windows are pruned.
	MaintenanceInterval time.Duration

	// MaxRestarts bounds how many times a transport fault triggers a restart before the daemon gives up.
	MaxRestarts int

	// ServerID overrides the generated server identifier.
	ServerID string

	// StopTimeout bounds how long a shutdown may take once requested.
	StopTimeout time.Duration
}

// Option defines a functional option for configuring Options.
// Options are applied in order, with later options overriding earlier ones.
type Option func(*Options) error

// NewOptions creates Options with optional configurations applied.
// Starts with default values, then applies options in order with later options overriding earlier ones.
func NewOptions(opts ...Option) (Options, error) {
	options := defaultOptions()

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

// WithAPIOptions configures API server options.
// Replaces all previous API configuration including CORS settings.
func WithAPIOptions(apiOpts ...APIOption) Option {
	return func(o *Options) error {
		o.APIOptions = apiOpts
		return nil
	}
}

// WithBuiltinHandlers enables or disables the built-in introspection handlers.
func WithBuiltinHandlers(enabled bool) Option {
	return func(o *Options) error {
		o.BuiltinHandlers = enabled
		return nil
	}
}

// WithHandlers appends handler registrations.
func WithHandlers(regs ...core.Registration) Option {
	return func(o *Options) error {
		o.Handlers = append(o.Handlers, regs...)
		return nil
	}
}

// WithMaintenanceInterval configures how often expired sessions and rate limit windows are pruned.
func WithMaintenanceInterval(interval time.Duration) Option {
	return func(o *Options) error {
		if interval <= 0 {
			return fmt.Errorf("maintenance interval must be positive, got %v", interval)
		}
		o.MaintenanceInterval = interval
		return nil
	}
}

// WithMaxRestarts configures how many fault-triggered restarts are attempted. Zero disables restarts.
func WithMaxRestarts(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return fmt.Errorf("max restarts cannot be negative, got %d", n)
		}
		o.MaxRestarts = n
		return nil
	}
}

// WithServerID sets the server identifier reported in info responses and events.
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

// WithStopTimeout configures how long a shutdown may take once requested.
func WithStopTimeout(timeout time.Duration) Option {
	return func(o *Options) error {
		if timeout <= 0 {
			return fmt.Errorf("stop timeout must be positive, got %v", timeout)
		}
		o.StopTimeout = timeout
		return nil
	}
}

// DefaultMaintenanceInterval is the default interval for pruning expired state.
func DefaultMaintenanceInterval() time.Duration {
	return time.Minute
}

// DefaultMaxRestarts is the default number of fault-triggered restarts.
func DefaultMaxRestarts() int {
	return 3
}

// DefaultStopTimeout is the default time allowed for shutdown.
func DefaultStopTimeout() time.Duration {
	return 10 * time.Second
}

// defaultOptions returns Options with default values.
func defaultOptions() Options {
	return Options{
		BuiltinHandlers:     true,
		MaintenanceInterval: DefaultMaintenanceInterval(),
		MaxRestarts:         DefaultMaxRestarts(),
		StopTimeout:         DefaultStopTimeout(),
	}
}
