// Package errors defines domain-level errors used throughout the runtime.
// These errors represent failures of the runtime's own contracts and are mapped to HTTP status codes
// and JSON-RPC error codes at the transport boundary.
//
// NOTE: Important for developers
// When adding a new error here, you MUST consider how it should be handled when returned from a transport.
//
// Unmapped errors will default to HTTP 500 Internal Server Error and JSON-RPC -32603 Internal error.
//
// Don't forget to:
// 1. Add your error to mapError (internal/daemon/api_server.go)
// 2. Add your error to CodeFor (internal/jsonrpc/codes.go)
// 3. Add test cases to TestMapError and TestCodeFor
package errors

import (
	"errors"
)

var (
	// ErrConfiguration indicates that the server or metric configuration is invalid.
	// It is fatal to startup: the runtime transitions to the error state.
	// Recommended to map to HTTP 500 Internal Server Error.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrValidation indicates a bad handler registration or malformed input.
	// Validation happens before any handler is invoked.
	// Recommended to map to HTTP 422 Unprocessable Entity.
	ErrValidation = errors.New("validation failed")

	// ErrBadRequest indicates that the client sent a request which could not be decoded.
	// Recommended to map to HTTP 400 Bad Request.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound indicates an unknown handler name, session, or connection identifier.
	// Recommended to map to HTTP 404 Not Found.
	ErrNotFound = errors.New("not found")

	// ErrAuthentication indicates a missing or invalid credential.
	// Recommended to map to HTTP 401 Unauthorized.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization indicates a valid credential that lacks permission for the request.
	// Recommended to map to HTTP 403 Forbidden.
	ErrAuthorization = errors.New("not authorized")

	// ErrRateLimited indicates the client exceeded the configured request budget for the current window.
	// Recommended to map to HTTP 429 Too Many Requests.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrHandlerExecution indicates that a registered handler failed during invocation.
	// Recommended to map to HTTP 502 Bad Gateway.
	ErrHandlerExecution = errors.New("handler execution failed")

	// ErrCircuitOpen indicates that a circuit breaker rejected a call without attempting it.
	// Recommended to map to HTTP 503 Service Unavailable.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrInvalidState indicates a lifecycle operation that is not valid from the current server state.
	// Recommended to map to HTTP 409 Conflict.
	ErrInvalidState = errors.New("invalid server state")

	// ErrTimeout indicates that the transport stopped waiting for a handler result.
	// Recommended to map to HTTP 504 Gateway Timeout.
	ErrTimeout = errors.New("request timed out")
)
