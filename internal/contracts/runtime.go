package contracts

import (
	"context"
	"time"

	"github.com/mozilla-ai/mcprt/internal/domain"
)

// Runtime is the capability a transport needs from the server core.
type Runtime interface {
	// Start transitions the runtime to running and starts attached transports.
	Start(ctx context.Context) error

	// Stop closes attached transports and transitions the runtime to stopped.
	Stop(ctx context.Context) error

	// Invoke runs the named handler with params.
	// Handler failures are reported in the result, not as an error.
	Invoke(ctx context.Context, name string, params map[string]any) (*domain.InvocationResult, error)

	// Health runs all health sub-checks and aggregates them.
	Health(ctx context.Context) domain.HealthReport

	// Handlers returns the registered handler descriptors sorted by name.
	Handlers() []domain.HandlerDescriptor

	// Info describes the runtime instance.
	Info() domain.ServerInfo
}

// Transport is a channel through which external callers invoke handlers.
type Transport interface {
	// Name identifies the transport, e.g. 'http' or 'stdio'.
	Name() string

	// Start begins serving and returns once the transport is accepting input.
	Start(ctx context.Context) error

	// Close stops accepting input and releases the transport's resources.
	Close(ctx context.Context) error
}

// ExecutionRecorder receives handler invocation measurements.
type ExecutionRecorder interface {
	// RecordRequestStarted marks the start of an invocation of the named handler.
	RecordRequestStarted(name string)

	// RecordToolExecution records the outcome of an invocation of the named handler.
	RecordToolExecution(name string, duration time.Duration, success bool)

	// HealthScore returns a heuristic in [0,100].
	HealthScore() float64
}

// MetricsExporter serializes collected metrics.
type MetricsExporter interface {
	// ExportPrometheus renders the latest value of every metric in Prometheus text format.
	ExportPrometheus() string

	// ExportJSON renders a summary and per metric statistics, optionally with recent raw values.
	ExportJSON(includeHistory bool) ([]byte, error)
}

// Dispatcher handles protocol messages and handler invocations for a transport.
type Dispatcher interface {
	// HandleMessage handles one encoded JSON-RPC message or batch and returns the encoded reply.
	// A nil reply means there is nothing to send.
	HandleMessage(ctx context.Context, data []byte) ([]byte, error)

	// Invoke runs the named handler, applying the transport's request timeout.
	Invoke(ctx context.Context, name string, params map[string]any) (*domain.InvocationResult, error)
}
