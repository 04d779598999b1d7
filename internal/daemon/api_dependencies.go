package daemon

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/auth"
	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/ratelimit"
)

// APIDependencies contains the required external dependencies for the API server.
// NewAPIDependencies should be used to create instances of APIDependencies.
type APIDependencies struct {
	// Addr specifies the network address to bind (e.g., "0.0.0.0:8090").
	Addr string

	// Authenticator checks request credentials.
	Authenticator *auth.Authenticator

	// Dispatcher handles JSON-RPC messages and direct handler invocations.
	Dispatcher contracts.Dispatcher

	// Exporter serializes collected metrics.
	Exporter contracts.MetricsExporter

	// Limiter enforces request budgets. Rate limiting is disabled when nil.
	Limiter *ratelimit.Limiter

	// Logger for API server operations.
	Logger hclog.Logger

	// Runtime serves health, info and handler listings.
	Runtime contracts.Runtime

	// Sessions enables the session refresh route when set.
	Sessions *auth.SessionStore
}

// NewAPIDependencies creates and validates APIDependencies.
func NewAPIDependencies(
	logger hclog.Logger,
	runtime contracts.Runtime,
	dispatcher contracts.Dispatcher,
	exporter contracts.MetricsExporter,
	authenticator *auth.Authenticator,
	addr string,
) (APIDependencies, error) {
	deps := APIDependencies{
		Addr:          addr,
		Authenticator: authenticator,
		Dispatcher:    dispatcher,
		Exporter:      exporter,
		Logger:        logger,
		Runtime:       runtime,
	}

	if err := deps.Validate(); err != nil {
		return APIDependencies{}, err
	}

	return deps, nil
}

// Validate ensures all required dependencies are provided and valid.
func (d APIDependencies) Validate() error {
	if err := validateAddr(d.Addr); err != nil {
		return fmt.Errorf("invalid API address '%s': %w", d.Addr, err)
	}
	if d.Authenticator == nil {
		return fmt.Errorf("authenticator cannot be nil")
	}
	if d.Dispatcher == nil || reflect.ValueOf(d.Dispatcher).IsNil() {
		return fmt.Errorf("dispatcher cannot be nil")
	}
	if d.Exporter == nil || reflect.ValueOf(d.Exporter).IsNil() {
		return fmt.Errorf("metrics exporter cannot be nil")
	}
	if d.Logger == nil || reflect.ValueOf(d.Logger).IsNil() {
		return fmt.Errorf("logger cannot be nil")
	}
	if d.Runtime == nil || reflect.ValueOf(d.Runtime).IsNil() {
		return fmt.Errorf("runtime cannot be nil")
	}
	return nil
}
