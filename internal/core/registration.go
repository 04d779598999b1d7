package core

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/mozilla-ai/mcprt/internal/breaker"
	"github.com/mozilla-ai/mcprt/internal/domain"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

// HandlerFunc is the body of a handler. params have already been validated against the input schema.
type HandlerFunc func(ctx context.Context, params map[string]any) (*mcp.CallToolResult, error)

// Registration describes a handler to register with a Server.
type Registration struct {
	// Name is the unique handler name.
	Name string

	Description string

	// Category is a free-form tag used to filter handler listings.
	Category string

	// InputSchema is the JSON Schema object that params must satisfy.
	// An empty schema accepts any object.
	InputSchema mcp.ToolInputSchema

	Handler HandlerFunc

	// Breaker optionally guards the handler. While the circuit is open the handler
	// is not invoked and the invocation fails with a circuit_open failure.
	Breaker *breaker.Breaker
}

// Typed adapts a handler body that takes a decoded argument struct.
// Arguments that cannot be decoded into T fail with errors.ErrValidation.
func Typed[T any](fn func(ctx context.Context, args T) (*mcp.CallToolResult, error)) HandlerFunc {
	return func(ctx context.Context, params map[string]any) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode arguments: %w", errors.ErrValidation, err)
		}

		var args T
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, fmt.Errorf("%w: failed to decode arguments: %w", errors.ErrValidation, err)
		}

		return fn(ctx, args)
	}
}

type handlerEntry struct {
	reg    Registration
	schema *gojsonschema.Schema
}

func newHandlerEntry(reg Registration) (*handlerEntry, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Name == "" {
		return nil, fmt.Errorf("%w: handler name cannot be empty", errors.ErrValidation)
	}
	if reg.Handler == nil {
		return nil, fmt.Errorf("%w: handler '%s' has no handler function", errors.ErrValidation, reg.Name)
	}
	if reg.InputSchema.Type == "" {
		reg.InputSchema.Type = "object"
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaDocument(reg.InputSchema)))
	if err != nil {
		return nil, fmt.Errorf("%w: handler '%s' has an invalid input schema: %w", errors.ErrValidation, reg.Name, err)
	}

	return &handlerEntry{reg: reg, schema: schema}, nil
}

// schemaDocument converts an input schema to the plain document form compiled by gojsonschema.
func schemaDocument(in mcp.ToolInputSchema) map[string]any {
	doc := map[string]any{"type": in.Type}
	if len(in.Properties) > 0 {
		doc["properties"] = in.Properties
	}
	if len(in.Required) > 0 {
		doc["required"] = in.Required
	}
	return doc
}

func (h *handlerEntry) descriptor() domain.HandlerDescriptor {
	return domain.HandlerDescriptor{
		Name:        h.reg.Name,
		Description: h.reg.Description,
		Category:    h.reg.Category,
		InputSchema: h.reg.InputSchema,
	}
}

// validate checks params against the input schema.
func (h *handlerEntry) validate(params map[string]any) error {
	result, err := h.schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("%w: invalid parameters for '%s': %w", errors.ErrValidation, h.reg.Name, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}

	return fmt.Errorf("%w: invalid parameters for '%s': %s", errors.ErrValidation, h.reg.Name, strings.Join(problems, "; "))
}

// errErrorResult marks a handler that reported failure through its result rather than an error.
var errErrorResult = fmt.Errorf("%w: handler returned an error result", errors.ErrHandlerExecution)

// call runs the handler body, through the breaker when one is configured.
// Panics and error results count as breaker failures; an error result is still returned as a result.
func (h *handlerEntry) call(ctx context.Context, params map[string]any) (*mcp.CallToolResult, error) {
	run := func(ctx context.Context) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: handler '%s' panicked: %v", errors.ErrHandlerExecution, h.reg.Name, r)
			}
		}()
		return h.reg.Handler(ctx, params)
	}

	if h.reg.Breaker == nil {
		return run(ctx)
	}

	result, err := breaker.Do(ctx, h.reg.Breaker, func(ctx context.Context) (*mcp.CallToolResult, error) {
		result, err := run(ctx)
		if err == nil && result != nil && result.IsError {
			return result, errErrorResult
		}
		return result, err
	})
	if stdErrors.Is(err, errErrorResult) {
		return result, nil
	}

	return result, err
}
