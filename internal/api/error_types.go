package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/mcprt/internal/domain"
)

// ErrorType represents the classification of errors returned via HTTP headers.
type ErrorType string

// HeaderErrorType is the HTTP header key which should be used to convey API error types.
const HeaderErrorType = "Mcprt-Error-Type"

const (
	// AuthenticationFailure indicates the request carried missing or invalid credentials.
	AuthenticationFailure ErrorType = "authentication-failure"

	// RateLimitExceeded indicates the client exhausted its request allowance for the current window.
	RateLimitExceeded ErrorType = "rate-limit-exceeded"
)

// FailureError is the problem response for an invocation that reached a handler but failed.
type FailureError struct {
	huma.ErrorModel

	Code      string `doc:"Machine-readable failure code" json:"code"`
	Handler   string `doc:"Name of the handler"           json:"handler"`
	RequestID string `doc:"Request identifier"            json:"requestId"`
}

var _ huma.StatusError = (*FailureError)(nil)

// NewFailureError converts a failed invocation into a FailureError with a matching status.
func NewFailureError(res *domain.InvocationResult) *FailureError {
	code := domain.FailureHandlerExecution
	msg := "handler failed"
	if res.Failure != nil {
		code = res.Failure.Code
		msg = res.Failure.Message
	}

	status := failureStatus(code)

	return &FailureError{
		ErrorModel: huma.ErrorModel{
			Title:  http.StatusText(status),
			Status: status,
			Detail: msg,
		},
		Code:      code,
		Handler:   res.Handler,
		RequestID: res.RequestID,
	}
}

func failureStatus(code string) int {
	switch code {
	case domain.FailureInvalidParams:
		return http.StatusUnprocessableEntity
	case domain.FailureCircuitOpen:
		return http.StatusServiceUnavailable
	case domain.FailureTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
