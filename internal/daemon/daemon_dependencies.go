package daemon

import (
	"fmt"
	"io"
	"reflect"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/config"
)

// Dependencies contains required dependencies for the Daemon.
// NewDependencies should be used to create instances of Dependencies.
type Dependencies struct {
	// Config selects transports and configures every component.
	Config *config.Config

	// Logger for daemon and subcomponent (core, transports, metrics) operations.
	Logger hclog.Logger

	// Stdin is read by the stdio transport. Required when the stdio transport is enabled.
	Stdin io.Reader

	// Stdout receives stdio transport replies. Required when the stdio transport is enabled.
	Stdout io.Writer
}

// NewDependencies creates validated Dependencies.
func NewDependencies(
	logger hclog.Logger,
	cfg *config.Config,
	stdin io.Reader,
	stdout io.Writer,
) (Dependencies, error) {
	deps := Dependencies{
		Config: cfg,
		Logger: logger,
		Stdin:  stdin,
		Stdout: stdout,
	}

	if err := deps.Validate(); err != nil {
		return Dependencies{}, err
	}

	return deps, nil
}

// Validate ensures all required dependencies are provided and valid.
func (d Dependencies) Validate() error {
	if d.Logger == nil || reflect.ValueOf(d.Logger).IsNil() {
		return fmt.Errorf("logger cannot be nil")
	}

	if d.Config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := d.Config.Validate(); err != nil {
		return err
	}

	if d.Config.Server.HasTransport(config.TransportStdio) {
		if isNil(d.Stdin) {
			return fmt.Errorf("stdin cannot be nil when the stdio transport is enabled")
		}
		if isNil(d.Stdout) {
			return fmt.Errorf("stdout cannot be nil when the stdio transport is enabled")
		}
	}

	return nil
}

// isNil reports whether v is nil or a nil pointer, map, func, channel or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
