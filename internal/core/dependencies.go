package core

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/contracts"
)

// Dependencies contains required dependencies for the Server.
// NewDependencies should be used to create instances of Dependencies.
type Dependencies struct {
	// Logger for lifecycle and invocation logging.
	Logger hclog.Logger

	// Config is validated on every Start.
	Config *config.Config

	// Recorder receives invocation counts and timings.
	Recorder contracts.ExecutionRecorder
}

// NewDependencies creates validated Dependencies.
func NewDependencies(logger hclog.Logger, cfg *config.Config, recorder contracts.ExecutionRecorder) (Dependencies, error) {
	deps := Dependencies{
		Logger:   logger,
		Config:   cfg,
		Recorder: recorder,
	}

	if err := deps.Validate(); err != nil {
		return Dependencies{}, err
	}

	return deps, nil
}

// Validate ensures all required dependencies are provided.
func (d Dependencies) Validate() error {
	if d.Logger == nil || reflect.ValueOf(d.Logger).IsNil() {
		return fmt.Errorf("logger cannot be nil")
	}

	if d.Config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if d.Recorder == nil || reflect.ValueOf(d.Recorder).IsNil() {
		return fmt.Errorf("execution recorder cannot be nil")
	}

	return nil
}
