package jsonrpc

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/mcprt/internal/errors"
)

func TestCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "bad request", err: errors.ErrBadRequest, want: CodeInvalidRequest},
		{name: "validation", err: errors.ErrValidation, want: CodeInvalidParams},
		{name: "not found", err: errors.ErrNotFound, want: CodeNotFound},
		{name: "authentication", err: errors.ErrAuthentication, want: CodeAuthentication},
		{name: "authorization", err: errors.ErrAuthorization, want: CodeAuthorization},
		{name: "rate limited", err: errors.ErrRateLimited, want: CodeRateLimited},
		{name: "circuit open", err: errors.ErrCircuitOpen, want: CodeCircuitOpen},
		{name: "timeout", err: errors.ErrTimeout, want: CodeTimeout},
		{name: "handler execution", err: errors.ErrHandlerExecution, want: CodeHandlerExecution},
		{name: "configuration", err: errors.ErrConfiguration, want: CodeConfiguration},
		{name: "invalid state", err: errors.ErrInvalidState, want: CodeInvalidState},
		{name: "wrapped", err: fmt.Errorf("%w: handler 'x'", errors.ErrNotFound), want: CodeNotFound},
		{name: "unmapped", err: stdErrors.New("boom"), want: CodeInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, CodeFor(tc.err))
		})
	}
}

func TestErrorFor(t *testing.T) {
	t.Parallel()

	e := ErrorFor(fmt.Errorf("%w: too many", errors.ErrRateLimited))
	require.Equal(t, CodeRateLimited, e.Code)
	require.Equal(t, "rate limit exceeded: too many", e.Message)
	require.EqualError(t, e, "jsonrpc error -32029: rate limit exceeded: too many")
}
