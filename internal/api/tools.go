package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/domain"
	"github.com/mozilla-ai/mcprt/internal/filter"
)

const (
	// queryParamDetail is the name of the query parameter for detail level selection.
	queryParamDetail = "detail"

	// toolDetailFull returns all fields including the input schema.
	toolDetailFull toolDetailLevel = "full"

	// toolDetailMinimal returns only the name.
	toolDetailMinimal toolDetailLevel = "minimal"

	// toolDetailSummary returns name, description and category.
	toolDetailSummary toolDetailLevel = "summary"
)

// toolDetailLevel defines the amount of information to return about tools.
type toolDetailLevel string

// ToolView is a union constraint for all tool view types.
// This ensures type safety when using generic ToolsResponse.
type ToolView interface {
	ToolMinimal | ToolSummary | Tool
}

// ToolsResponseBody represents the body of a tools response.
type ToolsResponseBody[T ToolView] struct {
	Tools []T `json:"tools"`
}

// ToolsResponse represents a generic wrapped API response for tool collections.
type ToolsResponse[T ToolView] struct {
	Body ToolsResponseBody[T]
}

// ToolsRequest filters the handler listing.
type ToolsRequest struct {
	Category string `doc:"Only include handlers in this category (case-insensitive)" query:"category"`
	Name     string `doc:"Only include handlers whose name contains this value" query:"name"`
	Query    string `doc:"Only include handlers whose name or description contains this value" query:"q"`
	Detail   string `doc:"Level of detail: minimal, summary or full (default)" query:"detail"`
}

// ToolMinimal represents minimal handler information.
type ToolMinimal struct {
	Name string `doc:"Name of the handler" json:"name"`
}

// ToolSummary adds the description and category.
type ToolSummary struct {
	ToolMinimal

	Description string `doc:"Description of what the handler does" json:"description"`
	Category    string `doc:"Handler category" json:"category,omitempty"`
}

// Tool represents complete handler information including the input schema.
type Tool struct {
	ToolSummary

	InputSchema *JSONSchema `doc:"Input parameters schema" json:"inputSchema,omitempty"`
}

// JSONSchema defines the structure for a JSON schema object.
type JSONSchema struct {
	// Type defines the type for this schema, e.g. "object".
	Type string `json:"type"`

	// Properties represents a property name and associated object definition.
	Properties map[string]any `json:"properties,omitempty"`

	// Required lists the (keys of) Properties that are required.
	Required []string `json:"required,omitempty"`
}

// DomainHandler wraps domain.HandlerDescriptor for conversion to Tool via ToAPIType.
type DomainHandler domain.HandlerDescriptor

// domainToolMinimal wraps Tool for projection to ToolMinimal via ToAPIType.
type domainToolMinimal Tool

// domainToolSummary wraps Tool for projection to ToolSummary via ToAPIType.
type domainToolSummary Tool

var (
	_ Convertible[Tool]        = DomainHandler{}
	_ Convertible[ToolMinimal] = domainToolMinimal{}
	_ Convertible[ToolSummary] = domainToolSummary{}
)

// ToolCallRequest is a direct invocation of a handler with a JSON object as params.
type ToolCallRequest struct {
	Name string         `doc:"Name of the handler" example:"runtime_health" path:"name"`
	Body map[string]any `doc:"Handler parameters" required:"false"`
}

// ToolCallResult is the successful outcome of a direct invocation.
type ToolCallResult struct {
	RequestID  string  `doc:"Request identifier" json:"requestId"`
	Handler    string  `doc:"Name of the handler" json:"handler"`
	DurationMs float64 `doc:"Handler execution time in milliseconds" json:"durationMs"`
	Result     any     `doc:"MCP tool call result" json:"result"`
}

// ToolCallResponse represents the wrapped API response for calling a handler.
type ToolCallResponse struct {
	Body ToolCallResult
}

// Normalize handles case-insensitivity and trimming, providing a safe default.
func (t toolDetailLevel) Normalize() toolDetailLevel {
	normalized := toolDetailLevel(strings.ToLower(strings.TrimSpace(string(t))))
	switch normalized {
	case toolDetailMinimal, toolDetailSummary, toolDetailFull:
		return normalized
	default:
		return toolDetailFull
	}
}

// ToAPIType can be used to convert a wrapped domain type to an API-safe type.
func (d DomainHandler) ToAPIType() (Tool, error) {
	var schema *JSONSchema
	if d.InputSchema.Type != "" || len(d.InputSchema.Properties) > 0 {
		schema = &JSONSchema{
			Type:       d.InputSchema.Type,
			Properties: d.InputSchema.Properties,
			Required:   d.InputSchema.Required,
		}
	}

	return Tool{
		ToolSummary: ToolSummary{
			ToolMinimal: ToolMinimal{Name: d.Name},
			Description: d.Description,
			Category:    d.Category,
		},
		InputSchema: schema,
	}, nil
}

// ToAPIType projects a Tool to ToolMinimal.
func (d domainToolMinimal) ToAPIType() (ToolMinimal, error) {
	return d.ToolMinimal, nil
}

// ToAPIType projects a Tool to ToolSummary.
func (d domainToolSummary) ToAPIType() (ToolSummary, error) {
	return d.ToolSummary, nil
}

// handlerMatchers are the supported filters of the tools listing.
func handlerMatchers() filter.Matchers[domain.HandlerDescriptor] {
	name := func(h domain.HandlerDescriptor) string { return h.Name }
	description := func(h domain.HandlerDescriptor) string { return h.Description }
	category := func(h domain.HandlerDescriptor) string { return h.Category }

	return filter.Matchers[domain.HandlerDescriptor]{
		"category": filter.Equals(category),
		"name":     filter.Partial(name),
		"q":        filter.PartialAny(name, description),
	}
}

// RegisterToolRoutes sets up handler listing and direct invocation routes.
func RegisterToolRoutes(
	routerAPI huma.API,
	runtime contracts.Runtime,
	dispatcher contracts.Dispatcher,
	apiPathPrefix string,
) {
	toolsAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Tools"}

	// Add route at the root of the group (no path specified).
	huma.Register(
		toolsAPI,
		huma.Operation{
			OperationID: "listTools",
			Method:      http.MethodGet,
			Summary:     "List registered handlers",
			Tags:        tags,
		},
		func(ctx context.Context, input *ToolsRequest) (*ToolsResponse[Tool], error) {
			return handleTools(runtime, input)
		},
	)

	huma.Register(
		toolsAPI,
		huma.Operation{
			OperationID: "callTool",
			Method:      http.MethodPost,
			Path:        "/{name}",
			Summary:     "Invoke a handler",
			Tags:        tags,
		},
		func(ctx context.Context, input *ToolCallRequest) (*ToolCallResponse, error) {
			return handleToolCall(ctx, dispatcher, input.Name, input.Body)
		},
	)
}

// handleTools is the handler for listing registered handlers with optional filtering.
func handleTools(runtime contracts.Runtime, input *ToolsRequest) (*ToolsResponse[Tool], error) {
	filters := map[string]string{
		"category": input.Category,
		"name":     input.Name,
		"q":        input.Query,
	}
	handlers := filter.Apply(runtime.Handlers(), filters, handlerMatchers())

	tools := make([]Tool, 0, len(handlers))
	for _, h := range handlers {
		t, err := DomainHandler(h).ToAPIType()
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}

	resp := &ToolsResponse[Tool]{}
	resp.Body.Tools = tools

	return resp, nil
}

// handleToolCall invokes a handler directly. Handler failures become a FailureError.
func handleToolCall(
	ctx context.Context,
	dispatcher contracts.Dispatcher,
	name string,
	params map[string]any,
) (*ToolCallResponse, error) {
	res, err := dispatcher.Invoke(ctx, name, params)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, NewFailureError(res)
	}

	resp := &ToolCallResponse{}
	resp.Body = ToolCallResult{
		RequestID:  res.RequestID,
		Handler:    res.Handler,
		DurationMs: milliseconds(res.Duration),
		Result:     res.Result,
	}

	return resp, nil
}

// toolFieldSelectTransformer transforms tool responses based on the detail query parameter.
// It filters the response to return only the requested level of detail: minimal, summary, or full.
func toolFieldSelectTransformer(ctx huma.Context, _ string, v any) (any, error) {
	detail := toolDetailLevel(ctx.Query(queryParamDetail)).Normalize()
	if detail == toolDetailFull {
		return v, nil
	}

	// Huma passes the Body field to transformers, not the full response.
	body, ok := v.(ToolsResponseBody[Tool])
	if !ok {
		return v, nil
	}

	switch detail {
	case toolDetailMinimal:
		minimal := make([]ToolMinimal, len(body.Tools))
		for i, tool := range body.Tools {
			m, err := domainToolMinimal(tool).ToAPIType()
			if err != nil {
				return nil, err
			}
			minimal[i] = m
		}
		return ToolsResponseBody[ToolMinimal]{Tools: minimal}, nil
	case toolDetailSummary:
		summary := make([]ToolSummary, len(body.Tools))
		for i, tool := range body.Tools {
			s, err := domainToolSummary(tool).ToAPIType()
			if err != nil {
				return nil, err
			}
			summary[i] = s
		}
		return ToolsResponseBody[ToolSummary]{Tools: summary}, nil
	default:
		return v, nil
	}
}
