package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/core"
	"github.com/mozilla-ai/mcprt/internal/domain"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// FailureData is attached to the error of a failed direct handler invocation.
type FailureData struct {
	Code      string `json:"code"`
	Handler   string `json:"handler"`
	RequestID string `json:"requestId"`
}

// Dispatcher routes JSON-RPC requests to a runtime.
// NewDispatcher should be used to create instances of Dispatcher.
type Dispatcher struct {
	logger  hclog.Logger
	runtime contracts.Runtime
	opts    Options
}

// NewDispatcher creates a Dispatcher for the given runtime.
func NewDispatcher(logger hclog.Logger, runtime contracts.Runtime, opt ...Option) (*Dispatcher, error) {
	if logger == nil || reflect.ValueOf(logger).IsNil() {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if runtime == nil || reflect.ValueOf(runtime).IsNil() {
		return nil, fmt.Errorf("runtime cannot be nil")
	}

	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		logger:  logger.Named("jsonrpc"),
		runtime: runtime,
		opts:    opts,
	}, nil
}

// HandleMessage decodes a single request or a batch, dispatches it and returns the encoded reply.
// A nil reply means there is nothing to write, which is the case for notifications.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return json.Marshal(NewErrorResponse(nil, &Error{Code: CodeParseError, Message: "parse error"}))
	}

	if len(data) > 0 && data[0] == '[' {
		return d.handleBatch(ctx, data)
	}

	resp := d.handleRaw(ctx, data)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

func (d *Dispatcher) handleBatch(ctx context.Context, data []byte) ([]byte, error) {
	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil || len(batch) == 0 {
		return json.Marshal(NewErrorResponse(nil, &Error{Code: CodeInvalidRequest, Message: "invalid request: empty batch"}))
	}

	responses := make([]*Response, 0, len(batch))
	for _, raw := range batch {
		if resp := d.handleRaw(ctx, raw); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		return nil, nil
	}
	return json.Marshal(responses)
}

func (d *Dispatcher) handleRaw(ctx context.Context, raw json.RawMessage) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(nil, &Error{Code: CodeInvalidRequest, Message: "invalid request: " + err.Error()})
	}

	return d.Handle(ctx, req)
}

// Handle dispatches a decoded request. It returns nil for notifications.
func (d *Dispatcher) Handle(ctx context.Context, req Request) *Response {
	if req.JSONRPC != Version || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return NewErrorResponse(req.ID, &Error{Code: CodeInvalidRequest, Message: "invalid request: jsonrpc must be \"2.0\" and method is required"})
	}

	if _, ok := core.RequestIDFromContext(ctx); !ok && !req.IsNotification() {
		ctx = core.WithRequestID(ctx, requestIDFrom(req.ID))
	}

	result, rpcErr := d.dispatch(ctx, req)

	if req.IsNotification() {
		if rpcErr != nil {
			d.logger.Debug("Notification failed", "method", req.Method, "error", rpcErr.Message)
		}
		return nil
	}
	if rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	return NewResult(req.ID, result)
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (any, *Error) {
	switch req.Method {
	case MethodInitialize:
		return d.initialize(), nil
	case MethodPing:
		return struct{}{}, nil
	case MethodToolsList:
		return d.toolsList(), nil
	case MethodToolsCall:
		return d.toolsCall(ctx, req.Params)
	}

	if strings.HasPrefix(req.Method, "rpc.") || strings.HasPrefix(req.Method, "notifications/") {
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	return d.direct(ctx, req.Method, req.Params)
}

func (d *Dispatcher) initialize() initializeResult {
	info := d.runtime.Info()

	instructions := d.opts.Instructions
	if instructions == "" {
		instructions = info.Description
	}

	return initializeResult{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      mcp.Implementation{Name: info.Name, Version: info.Version},
		Instructions:    instructions,
	}
}

func (d *Dispatcher) toolsList() mcp.ListToolsResult {
	handlers := d.runtime.Handlers()
	tools := make([]mcp.Tool, 0, len(handlers))
	for _, h := range handlers {
		tools = append(tools, h.Tool())
	}
	return mcp.ListToolsResult{Tools: tools}
}

// toolsCall reports handler failures as an MCP error result so clients can show them to the model.
func (d *Dispatcher) toolsCall(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var params callParams
	if len(raw) == 0 || json.Unmarshal(raw, &params) != nil || strings.TrimSpace(params.Name) == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid params: tools/call requires a tool name"}
	}

	args, err := decodeArguments(params.Arguments)
	if err != nil {
		return nil, ErrorFor(err)
	}

	res, err := d.Invoke(ctx, params.Name, args)
	if err != nil {
		return nil, ErrorFor(err)
	}
	if res.Success {
		return res.Result, nil
	}
	if res.Result != nil && res.Result.IsError {
		return res.Result, nil
	}
	return mcp.NewToolResultError(res.Failure.Message), nil
}

// direct invokes a handler named by the method. Failures are returned as JSON-RPC errors.
func (d *Dispatcher) direct(ctx context.Context, name string, raw json.RawMessage) (any, *Error) {
	args, err := decodeArguments(raw)
	if err != nil {
		return nil, ErrorFor(err)
	}

	res, err := d.Invoke(ctx, name, args)
	if stdErrors.Is(err, errors.ErrNotFound) {
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + name}
	}
	if err != nil {
		return nil, ErrorFor(err)
	}
	if !res.Success {
		return nil, failureError(res)
	}
	return res.Result, nil
}

// Invoke calls the runtime, giving up once the configured timeout elapses.
// A timed-out handler keeps running; its context is cancelled so it can stop early.
func (d *Dispatcher) Invoke(ctx context.Context, name string, params map[string]any) (*domain.InvocationResult, error) {
	if d.opts.Timeout <= 0 {
		return d.runtime.Invoke(ctx, name, params)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	type outcome struct {
		res *domain.InvocationResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := d.runtime.Invoke(ctx, name, params)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		if stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
			d.logger.Warn("Handler timed out", "name", name, "timeout", d.opts.Timeout)
			return nil, fmt.Errorf("%w: handler '%s' did not respond within %s", errors.ErrTimeout, name, d.opts.Timeout)
		}
		return nil, ctx.Err()
	}
}

func failureError(res *domain.InvocationResult) *Error {
	code := CodeHandlerExecution
	switch res.Failure.Code {
	case domain.FailureCircuitOpen:
		code = CodeCircuitOpen
	case domain.FailureTimeout:
		code = CodeTimeout
	case domain.FailureInvalidParams:
		code = CodeInvalidParams
	}

	return &Error{
		Code:    code,
		Message: res.Failure.Message,
		Data: FailureData{
			Code:      res.Failure.Code,
			Handler:   res.Handler,
			RequestID: res.RequestID,
		},
	}
}

// decodeArguments decodes params that must be absent, null or a JSON object.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: params must be a JSON object", errors.ErrValidation)
	}
	return args, nil
}

// requestIDFrom renders a JSON-RPC id as a request id, unquoting string ids.
func requestIDFrom(id json.RawMessage) string {
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}
