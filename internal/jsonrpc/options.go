package jsonrpc

import (
	"fmt"
	"time"
)

// Option defines a functional option for configuring Options.
type Option func(*Options) error

// Options contains optional configuration for the Dispatcher.
type Options struct {
	// Timeout bounds how long a handler invocation is waited for. Zero waits indefinitely.
	Timeout time.Duration

	// Instructions are returned to clients in the initialize result.
	Instructions string
}

// NewOptions creates Options with optional configurations applied.
func NewOptions(opts ...Option) (Options, error) {
	var options Options

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

// WithTimeout sets the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d < 0 {
			return fmt.Errorf("timeout cannot be negative")
		}
		o.Timeout = d
		return nil
	}
}

// WithInstructions sets the instructions returned by initialize.
func WithInstructions(s string) Option {
	return func(o *Options) error {
		o.Instructions = s
		return nil
	}
}
