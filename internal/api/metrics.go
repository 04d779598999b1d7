package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/mcprt/internal/contracts"
)

const (
	metricsFormatPrometheus = "prometheus"
	metricsFormatJSON       = "json"

	contentTypePrometheus = "text/plain; version=0.0.4; charset=utf-8"
)

// MetricsRequest selects the export format.
type MetricsRequest struct {
	Format  string `default:"prometheus" doc:"Export format"                              enum:"prometheus,json" query:"format"`
	History bool   `doc:"Include recent raw values per metric (json format only)" query:"history"`
}

// MetricsResponse carries the serialized metrics.
type MetricsResponse struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterMetricsRoutes sets up the metrics export route.
func RegisterMetricsRoutes(routerAPI huma.API, exporter contracts.MetricsExporter, apiPathPrefix string) {
	metricsAPI := huma.NewGroup(routerAPI, apiPathPrefix)

	huma.Register(
		metricsAPI,
		huma.Operation{
			OperationID: "exportMetrics",
			Method:      http.MethodGet,
			Summary:     "Export collected metrics",
			Tags:        []string{"Metrics"},
		},
		func(ctx context.Context, input *MetricsRequest) (*MetricsResponse, error) {
			return handleMetrics(exporter, input)
		},
	)
}

// handleMetrics is the handler for exporting metrics in the requested format.
func handleMetrics(exporter contracts.MetricsExporter, input *MetricsRequest) (*MetricsResponse, error) {
	if input.Format == metricsFormatJSON {
		data, err := exporter.ExportJSON(input.History)
		if err != nil {
			return nil, err
		}
		return &MetricsResponse{ContentType: contentTypeJSON, Body: data}, nil
	}

	return &MetricsResponse{
		ContentType: contentTypePrometheus,
		Body:        []byte(exporter.ExportPrometheus()),
	}, nil
}
