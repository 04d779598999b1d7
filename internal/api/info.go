package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/domain"
)

// DomainServerInfo wraps domain.ServerInfo for conversion to ServerInfo via ToAPIType.
type DomainServerInfo domain.ServerInfo

// ServerInfo describes the running instance.
type ServerInfo struct {
	ID          string     `doc:"Instance identifier"                 json:"id"`
	Name        string     `doc:"Server name"                         json:"name"`
	Version     string     `doc:"Server version"                      json:"version"`
	Description string     `doc:"Server description"                  json:"description,omitempty"`
	State       string     `doc:"Lifecycle state"                     json:"state"`
	Transports  []string   `doc:"Active transports"                   json:"transports"`
	StartedAt   *time.Time `doc:"When the runtime last started"       json:"startedAt,omitempty"`
	Handlers    int        `doc:"Number of registered handlers"       json:"handlers"`
}

// ServerInfoResponse is the response for GET /info.
type ServerInfoResponse struct {
	Body ServerInfo
}

// ToAPIType can be used to convert a wrapped domain type to an API-safe type.
func (d DomainServerInfo) ToAPIType() (ServerInfo, error) {
	transports := d.Transports
	if transports == nil {
		transports = []string{}
	}

	return ServerInfo{
		ID:          d.ID,
		Name:        d.Name,
		Version:     d.Version,
		Description: d.Description,
		State:       d.State,
		Transports:  transports,
		StartedAt:   d.StartedAt,
	}, nil
}

// RegisterInfoRoutes sets up the server information route.
func RegisterInfoRoutes(routerAPI huma.API, runtime contracts.Runtime, apiPathPrefix string) {
	infoAPI := huma.NewGroup(routerAPI, apiPathPrefix)

	huma.Register(
		infoAPI,
		huma.Operation{
			OperationID: "getInfo",
			Method:      http.MethodGet,
			Summary:     "Describe the server",
			Tags:        []string{"Info"},
		},
		func(ctx context.Context, _ *struct{}) (*ServerInfoResponse, error) {
			data, err := DomainServerInfo(runtime.Info()).ToAPIType()
			if err != nil {
				return nil, err
			}
			data.Handlers = len(runtime.Handlers())

			resp := &ServerInfoResponse{}
			resp.Body = data

			return resp, nil
		},
	)
}
