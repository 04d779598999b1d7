package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/mcprt/internal/contracts"
)

const contentTypeJSON = "application/json"

// RPCRequest carries an undecoded JSON-RPC message or batch.
type RPCRequest struct {
	RawBody []byte `contentType:"application/json"`
}

// RPCResponse carries the encoded JSON-RPC reply.
// Notifications produce no reply and are answered with 204.
type RPCResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterRPCRoutes sets up the JSON-RPC dispatch route.
func RegisterRPCRoutes(routerAPI huma.API, dispatcher contracts.Dispatcher, apiPathPrefix string) {
	rpcAPI := huma.NewGroup(routerAPI, apiPathPrefix)

	huma.Register(
		rpcAPI,
		huma.Operation{
			OperationID: "dispatchRPC",
			Method:      http.MethodPost,
			Summary:     "Dispatch a JSON-RPC 2.0 message",
			Description: "Accepts a single JSON-RPC 2.0 request, a notification, or a batch.",
			Tags:        []string{"RPC"},
		},
		func(ctx context.Context, input *RPCRequest) (*RPCResponse, error) {
			return handleRPC(ctx, dispatcher, input.RawBody)
		},
	)
}

// handleRPC is the handler for JSON-RPC messages.
// Protocol errors are reported inside the JSON-RPC envelope with a 200 status.
func handleRPC(ctx context.Context, dispatcher contracts.Dispatcher, body []byte) (*RPCResponse, error) {
	reply, err := dispatcher.HandleMessage(ctx, body)
	if err != nil {
		return nil, err
	}

	if reply == nil {
		return &RPCResponse{Status: http.StatusNoContent}, nil
	}

	return &RPCResponse{
		Status:      http.StatusOK,
		ContentType: contentTypeJSON,
		Body:        reply,
	}, nil
}
