package domain

import (
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// HandlerDescriptor is the public description of a registered handler.
type HandlerDescriptor struct {
	Name        string
	Description string
	Category    string
	InputSchema mcp.ToolInputSchema
}

// Tool converts the descriptor to its MCP tool representation.
func (d HandlerDescriptor) Tool() mcp.Tool {
	return mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema,
	}
}

const (
	FailureHandlerExecution = "handler_execution"
	FailureInvalidParams    = "invalid_params"
	FailureCircuitOpen      = "circuit_open"
	FailureTimeout          = "timeout"
)

// Failure describes why an invocation did not succeed.
type Failure struct {
	// Code is a stable machine-readable error code, e.g. "handler_execution".
	Code string

	// Message is the human-readable failure description.
	Message string
}

// InvocationResult is returned for every invocation that reached a registered handler.
// Handler failures are carried in Failure rather than returned as errors.
type InvocationResult struct {
	RequestID string
	Handler   string
	Success   bool
	Result    *mcp.CallToolResult
	Failure   *Failure
	Duration  time.Duration
}

// ServerInfo describes a runtime instance.
type ServerInfo struct {
	ID          string
	Name        string
	Version     string
	Description string
	State       string
	Transports  []string
	StartedAt   *time.Time
}
