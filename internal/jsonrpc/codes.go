package jsonrpc

import (
	stdErrors "errors"

	"github.com/mozilla-ai/mcprt/internal/errors"
)

// Standard JSON-RPC 2.0 codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Implementation-defined codes in the -32000 to -32099 server error range.
const (
	CodeHandlerExecution = -32000
	CodeAuthentication   = -32001
	CodeAuthorization    = -32003
	CodeNotFound         = -32004
	CodeCircuitOpen      = -32005
	CodeTimeout          = -32008
	CodeConfiguration    = -32010
	CodeInvalidState     = -32011
	CodeRateLimited      = -32029
)

// CodeFor maps a domain error to its JSON-RPC error code.
// Unmapped errors are reported as internal errors.
func CodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case stdErrors.Is(err, errors.ErrBadRequest):
		return CodeInvalidRequest
	case stdErrors.Is(err, errors.ErrValidation):
		return CodeInvalidParams
	case stdErrors.Is(err, errors.ErrNotFound):
		return CodeNotFound
	case stdErrors.Is(err, errors.ErrAuthentication):
		return CodeAuthentication
	case stdErrors.Is(err, errors.ErrAuthorization):
		return CodeAuthorization
	case stdErrors.Is(err, errors.ErrRateLimited):
		return CodeRateLimited
	case stdErrors.Is(err, errors.ErrCircuitOpen):
		return CodeCircuitOpen
	case stdErrors.Is(err, errors.ErrTimeout):
		return CodeTimeout
	case stdErrors.Is(err, errors.ErrHandlerExecution):
		return CodeHandlerExecution
	case stdErrors.Is(err, errors.ErrConfiguration):
		return CodeConfiguration
	case stdErrors.Is(err, errors.ErrInvalidState):
		return CodeInvalidState
	default:
		return CodeInternalError
	}
}

// ErrorFor converts err to a JSON-RPC error object.
func ErrorFor(err error) *Error {
	return &Error{Code: CodeFor(err), Message: err.Error()}
}
