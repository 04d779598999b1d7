package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/mozilla-ai/mcprt/internal/errors"
)

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
	KindTimer     Kind = "timer"
)

const (
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
	AggregationCount Aggregation = "count"
	AggregationP95   Aggregation = "p95"
	AggregationP99   Aggregation = "p99"
)

// Kind is the type of a metric.
type Kind string

// Aggregation selects how values in a time-series bucket are reduced.
type Aggregation string

// Config describes a named metric.
type Config struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"type"`
	Description string `json:"description"`
	Unit        string `json:"unit,omitempty"`
}

// Value is a single timestamped observation.
type Value struct {
	Value     float64           `json:"value"`
	Timestamp int64             `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Stats is derived from a value sequence on demand and never stored.
type Stats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Latest float64 `json:"latest"`
	Oldest float64 `json:"oldest"`
}

// TimeSeriesPoint is one aggregated, bucket-aligned window.
type TimeSeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
	Count     int     `json:"count"`
}

// MemorySnapshot captures process memory usage in bytes.
type MemorySnapshot struct {
	HeapUsed  uint64 `json:"heapUsed"`
	HeapTotal uint64 `json:"heapTotal"`
	External  uint64 `json:"external"`
	Resident  uint64 `json:"resident"`
}

// CPUSnapshot captures CPU time consumed since the previous snapshot, in milliseconds.
type CPUSnapshot struct {
	User   float64 `json:"user"`
	System float64 `json:"system"`
}

// PerformanceSnapshot is a point-in-time capture of process resource usage.
type PerformanceSnapshot struct {
	Timestamp      int64          `json:"timestamp"`
	Memory         MemorySnapshot `json:"memory"`
	CPU            CPUSnapshot    `json:"cpu"`
	SchedulerDelay time.Duration  `json:"schedulerDelay"`
	Goroutines     int            `json:"goroutines"`
	Uptime         time.Duration  `json:"uptime"`
}

// CleanupEvent reports the outcome of a retention pass.
type CleanupEvent struct {
	Removed          int
	SnapshotsRemoved int
	Timestamp        time.Time
}

// PrometheusType returns the exposition type for the kind. Timers are exposed as histograms.
func (k Kind) PrometheusType() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindHistogram, KindTimer:
		return "histogram"
	default:
		return "gauge"
	}
}

func (k Kind) valid() bool {
	switch k {
	case KindCounter, KindGauge, KindHistogram, KindTimer:
		return true
	default:
		return false
	}
}

// ParseAggregation converts a user supplied aggregation name.
func ParseAggregation(s string) (Aggregation, error) {
	a := Aggregation(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case AggregationSum, AggregationAvg, AggregationMin, AggregationMax, AggregationCount, AggregationP95, AggregationP99:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown aggregation '%s'", errors.ErrValidation, s)
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: metric name cannot be empty", errors.ErrConfiguration)
	}
	if !c.Kind.valid() {
		return fmt.Errorf("%w: metric '%s' has unknown type '%s'", errors.ErrConfiguration, c.Name, c.Kind)
	}
	return nil
}
