// Package builtin provides the introspection handlers every runtime registers,
// so a runtime with no application handlers can still report on itself.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mozilla-ai/mcprt/internal/api"
	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/core"
)

const (
	// Category groups the built-in handlers in listings.
	Category = "runtime"

	HealthHandlerName  = "runtime_health"
	MetricsHandlerName = "runtime_metrics"
)

const (
	formatJSON       = "json"
	formatPrometheus = "prometheus"
)

// Registrar accepts handler registrations.
type Registrar interface {
	Register(reg core.Registration) error
}

type metricsArgs struct {
	Format  string `json:"format"`
	History bool   `json:"history"`
}

// Registrations returns the built-in handlers bound to the given runtime and exporter.
func Registrations(runtime contracts.Runtime, exporter contracts.MetricsExporter) ([]core.Registration, error) {
	if runtime == nil || reflect.ValueOf(runtime).IsNil() {
		return nil, fmt.Errorf("runtime cannot be nil")
	}
	if exporter == nil || reflect.ValueOf(exporter).IsNil() {
		return nil, fmt.Errorf("metrics exporter cannot be nil")
	}

	return []core.Registration{
		{
			Name:        HealthHandlerName,
			Description: "Runs the runtime health checks and returns the aggregate report",
			Category:    Category,
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{},
			},
			Handler: healthHandler(runtime),
		},
		{
			Name:        MetricsHandlerName,
			Description: "Exports the collected runtime metrics",
			Category:    Category,
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"format": map[string]any{
						"type":        "string",
						"enum":        []any{formatJSON, formatPrometheus},
						"description": "Export format, defaults to json",
					},
					"history": map[string]any{
						"type":        "boolean",
						"description": "Include recent raw values in the json export",
					},
				},
			},
			Handler: core.Typed(metricsHandler(exporter)),
		},
	}, nil
}

// Register adds the built-in handlers to r.
func Register(r Registrar, runtime contracts.Runtime, exporter contracts.MetricsExporter) error {
	regs, err := Registrations(runtime, exporter)
	if err != nil {
		return err
	}

	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			return fmt.Errorf("failed to register built-in handler '%s': %w", reg.Name, err)
		}
	}

	return nil
}

func healthHandler(runtime contracts.Runtime) core.HandlerFunc {
	return func(ctx context.Context, _ map[string]any) (*mcp.CallToolResult, error) {
		report, err := api.DomainHealthReport(runtime.Health(ctx)).ToAPIType()
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("failed to encode health report: %w", err)
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func metricsHandler(exporter contracts.MetricsExporter) func(context.Context, metricsArgs) (*mcp.CallToolResult, error) {
	return func(_ context.Context, args metricsArgs) (*mcp.CallToolResult, error) {
		if args.Format == formatPrometheus {
			return mcp.NewToolResultText(exporter.ExportPrometheus()), nil
		}

		data, err := exporter.ExportJSON(args.History)
		if err != nil {
			return nil, fmt.Errorf("failed to export metrics: %w", err)
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}
