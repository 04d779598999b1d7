package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/domain"
)

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const (
	CheckStatusPass CheckStatus = "pass"
	CheckStatusWarn CheckStatus = "warn"
	CheckStatusFail CheckStatus = "fail"
)

// DomainHealthReport is a wrapper that allows receivers to be declared in the API package that deal with domain types.
type DomainHealthReport domain.HealthReport

// HealthStatus represents the aggregate status of the runtime.
type HealthStatus string

// CheckStatus represents the outcome of a single health check.
type CheckStatus string

// HealthCheck is the API representation of one named health check.
type HealthCheck struct {
	Status     CheckStatus `doc:"Outcome of the check"                  json:"status"`
	DurationMs float64     `doc:"Time taken by the check in milliseconds" json:"durationMs"`
	Message    string      `doc:"Detail about the outcome"              json:"message,omitempty"`
}

// Health is the aggregate health of the runtime.
type Health struct {
	Status    HealthStatus           `doc:"Aggregate status"                   json:"status"`
	Checks    map[string]HealthCheck `doc:"Individual checks keyed by name"    json:"checks"`
	Timestamp time.Time              `doc:"When the checks were run"           json:"timestamp"`
	Uptime    float64                `doc:"Seconds since the runtime started"  json:"uptime"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Body Health
}

// ToAPIType can be used to convert a wrapped domain type to an API-safe type.
func (d DomainHealthReport) ToAPIType() (Health, error) {
	status, err := parseHealthStatus(d.Status)
	if err != nil {
		return Health{}, err
	}

	checks := make(map[string]HealthCheck, len(d.Checks))
	for name, c := range d.Checks {
		cs, err := parseCheckStatus(c.Status)
		if err != nil {
			return Health{}, fmt.Errorf("check '%s': %w", name, err)
		}
		checks[name] = HealthCheck{
			Status:     cs,
			DurationMs: milliseconds(c.Duration),
			Message:    c.Message,
		}
	}

	return Health{
		Status:    status,
		Checks:    checks,
		Timestamp: d.Timestamp,
		Uptime:    d.Uptime.Seconds(),
	}, nil
}

// RegisterHealthRoutes sets up the health endpoint route.
// The endpoint reports an unhealthy runtime in its body and always answers 200.
func RegisterHealthRoutes(routerAPI huma.API, runtime contracts.Runtime, apiPathPrefix string) {
	healthAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Health"}

	huma.Register(
		healthAPI,
		huma.Operation{
			OperationID: "getHealth",
			Method:      http.MethodGet,
			Summary:     "Run health checks and report aggregate status",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
			return handleHealth(ctx, runtime)
		},
	)
}

// handleHealth is the handler for running all health checks.
func handleHealth(ctx context.Context, runtime contracts.Runtime) (*HealthResponse, error) {
	data, err := DomainHealthReport(runtime.Health(ctx)).ToAPIType()
	if err != nil {
		return nil, err
	}

	resp := &HealthResponse{}
	resp.Body = data

	return resp, nil
}

func parseHealthStatus(status domain.HealthStatus) (HealthStatus, error) {
	switch status {
	case domain.HealthStatusHealthy:
		return HealthStatusHealthy, nil
	case domain.HealthStatusDegraded:
		return HealthStatusDegraded, nil
	case domain.HealthStatusUnhealthy:
		return HealthStatusUnhealthy, nil
	default:
		return "", fmt.Errorf("unknown health status: %s", status)
	}
}

func parseCheckStatus(status domain.CheckStatus) (CheckStatus, error) {
	switch status {
	case domain.CheckStatusPass:
		return CheckStatusPass, nil
	case domain.CheckStatusWarn:
		return CheckStatusWarn, nil
	case domain.CheckStatusFail:
		return CheckStatusFail, nil
	default:
		return "", fmt.Errorf("unknown check status: %s", status)
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
