package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/mcprt/internal/auth"
	"github.com/mozilla-ai/mcprt/internal/contracts"
)

// Route paths, relative to the base path.
const (
	PathHealth  = "/health"
	PathInfo    = "/info"
	PathRPC     = "/rpc"
	PathTools   = "/tools"
	PathMetrics = "/metrics"
	PathAuth    = "/auth"
	PathRefresh = PathAuth + "/refresh"
)

// RouteDependencies are the collaborators the HTTP routes are served from.
type RouteDependencies struct {
	Runtime    contracts.Runtime
	Dispatcher contracts.Dispatcher
	Exporter   contracts.MetricsExporter

	// Sessions enables the token refresh route when set.
	Sessions *auth.SessionStore
}

// Validate ensures all required dependencies are provided.
func (d RouteDependencies) Validate() error {
	if d.Runtime == nil || reflect.ValueOf(d.Runtime).IsNil() {
		return fmt.Errorf("runtime cannot be nil")
	}
	if d.Dispatcher == nil || reflect.ValueOf(d.Dispatcher).IsNil() {
		return fmt.Errorf("dispatcher cannot be nil")
	}
	if d.Exporter == nil || reflect.ValueOf(d.Exporter).IsNil() {
		return fmt.Errorf("metrics exporter cannot be nil")
	}
	return nil
}

// RegisterRoutes registers all API routes on the provided Huma router.
// This is the single source of truth for the API route structure.
// Returns the normalized base path under which the routes are created.
func RegisterRoutes(router huma.API, deps RouteDependencies, basePath string) (string, error) {
	if router == nil || reflect.ValueOf(router).IsNil() {
		return "", fmt.Errorf("router cannot be nil")
	}
	if err := deps.Validate(); err != nil {
		return "", err
	}

	prefix := NormalizeBasePath(basePath)
	base := huma.NewGroup(router, prefix)

	RegisterHealthRoutes(base, deps.Runtime, PathHealth)
	RegisterInfoRoutes(base, deps.Runtime, PathInfo)
	RegisterRPCRoutes(base, deps.Dispatcher, PathRPC)
	RegisterToolRoutes(base, deps.Runtime, deps.Dispatcher, PathTools)
	RegisterMetricsRoutes(base, deps.Exporter, PathMetrics)
	if deps.Sessions != nil {
		RegisterSessionRoutes(base, deps.Sessions, PathAuth)
	}

	return prefix, nil
}

// NormalizeBasePath returns basePath with a single leading slash and no trailing slash.
// The root path normalizes to the empty string.
func NormalizeBasePath(basePath string) string {
	p := strings.Trim(strings.TrimSpace(basePath), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
