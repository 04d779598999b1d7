package options

import (
	"fmt"
	"io"
	"os"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/daemon"
)

type CmdOption func(*CmdOptions) error

// CmdOptions carries the collaborators commands depend on, so tests and embedders can replace them.
type CmdOptions struct {
	ConfigLoader      config.Loader
	ConfigInitializer config.Initializer

	// DaemonOptions are applied when the serve command builds the daemon,
	// e.g. to register application handlers.
	DaemonOptions []daemon.Option

	// Stdin and Stdout carry the stdio transport.
	Stdin  io.Reader
	Stdout io.Writer
}

func defaultOptions() CmdOptions {
	configLoader := &config.DefaultLoader{}
	return CmdOptions{
		ConfigLoader:      configLoader,
		ConfigInitializer: configLoader,
		Stdin:             os.Stdin,
		Stdout:            os.Stdout,
	}
}

func NewOptions(opt ...CmdOption) (CmdOptions, error) {
	opts := defaultOptions()

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(&opts); err != nil {
			return CmdOptions{}, err
		}
	}
	return opts, nil
}

func WithConfigLoader(l config.Loader) CmdOption {
	return func(o *CmdOptions) error {
		if l == nil {
			return fmt.Errorf("config loader cannot be nil")
		}
		o.ConfigLoader = l
		return nil
	}
}

func WithConfigInitializer(i config.Initializer) CmdOption {
	return func(o *CmdOptions) error {
		if i == nil {
			return fmt.Errorf("config initializer cannot be nil")
		}
		o.ConfigInitializer = i
		return nil
	}
}

// WithDaemonOptions appends options applied to the daemon built by the serve command.
func WithDaemonOptions(opts ...daemon.Option) CmdOption {
	return func(o *CmdOptions) error {
		o.DaemonOptions = append(o.DaemonOptions, opts...)
		return nil
	}
}

// WithStdio replaces the streams used by the stdio transport.
func WithStdio(in io.Reader, out io.Writer) CmdOption {
	return func(o *CmdOptions) error {
		if in == nil || out == nil {
			return fmt.Errorf("stdio streams cannot be nil")
		}
		o.Stdin = in
		o.Stdout = out
		return nil
	}
}
