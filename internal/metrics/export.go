package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/common/model"
)

const (
	// historyLimit is the number of raw values included per metric in a JSON export with history.
	historyLimit = 100

	heapWarnBytes     = 512 << 20
	heapCriticalBytes = 1 << 30
	slowResponseMs    = 1_000
	verySlowResponse  = 5_000
)

var (
	helpEscaper       = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelValueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

// Summary aggregates the global request counters.
type Summary struct {
	RequestCount    int64   `json:"requestCount"`
	ErrorCount      int64   `json:"errorCount"`
	ErrorRate       float64 `json:"errorRate"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	HealthScore     float64 `json:"healthScore"`
	ResponseTimeP50 float64 `json:"responseTimeP50"`
	ResponseTimeP95 float64 `json:"responseTimeP95"`
	ResponseTimeP99 float64 `json:"responseTimeP99"`
}

// MetricExport is the per-metric entry of a JSON export.
// Latest is set without history, Config and Values with history. Stats is always set.
type MetricExport struct {
	Latest *Value  `json:"latest,omitempty"`
	Config *Config `json:"config,omitempty"`
	Values []Value `json:"values,omitempty"`
	Stats  *Stats  `json:"stats,omitempty"`
}

// Export is the JSON export document.
type Export struct {
	Service   string                  `json:"service"`
	Timestamp int64                   `json:"timestamp"`
	Uptime    int64                   `json:"uptime"`
	Summary   Summary                 `json:"summary"`
	Metrics   map[string]MetricExport `json:"metrics"`
}

// Summary returns the global request summary, including the health score.
func (c *Collector) Summary() Summary {
	c.mu.RLock()
	requests := c.requestCount
	failures := c.errorCount
	total := c.totalDuration
	var heap uint64
	if n := len(c.snapshots); n > 0 {
		heap = c.snapshots[n-1].Memory.HeapUsed
	}
	c.mu.RUnlock()

	s := Summary{
		RequestCount: requests,
		ErrorCount:   failures,
	}
	if requests > 0 {
		s.ErrorRate = float64(failures) / float64(requests)
		s.AvgResponseTime = total / float64(requests)
	}
	s.HealthScore = healthScore(s.ErrorRate, s.AvgResponseTime, heap)
	s.ResponseTimeP50, s.ResponseTimeP95, s.ResponseTimeP99 = c.ResponseTimePercentiles()

	return s
}

// HealthScore returns a heuristic in [0,100] derived from error rate, response time and heap usage.
func (c *Collector) HealthScore() float64 {
	return c.Summary().HealthScore
}

func healthScore(errorRate float64, avgResponseMs float64, heapUsed uint64) float64 {
	score := 100.0

	score -= math.Min(errorRate*100, 50)

	if avgResponseMs > slowResponseMs {
		score -= 20
		if avgResponseMs > verySlowResponse {
			score -= 30
		}
	}

	if heapUsed > heapWarnBytes {
		score -= 10
		if heapUsed > heapCriticalBytes {
			score -= 20
		}
	}

	return math.Max(0, math.Min(100, score))
}

// Export builds the JSON export document. With history each metric carries its config
// and up to the last 100 raw values, otherwise only its latest value.
func (c *Collector) Export(includeHistory bool) Export {
	now := c.opts.Clock()
	doc := Export{
		Service:   c.opts.ServiceName,
		Timestamp: now.UnixMilli(),
		Uptime:    now.Sub(c.startTime).Milliseconds(),
		Summary:   c.Summary(),
		Metrics:   make(map[string]MetricExport),
	}

	for _, name := range c.MetricNames() {
		values := c.Values(name)
		if len(values) == 0 {
			continue
		}
		stats := computeStats(values)
		entry := MetricExport{Stats: &stats}

		if includeHistory {
			cfg := c.configFor(name)
			entry.Config = &cfg
			entry.Values = values[max(0, len(values)-historyLimit):]
		} else {
			latest := values[len(values)-1]
			entry.Latest = &latest
		}
		doc.Metrics[name] = entry
	}

	return doc
}

// ExportJSON serializes Export.
func (c *Collector) ExportJSON(includeHistory bool) ([]byte, error) {
	data, err := json.Marshal(c.Export(includeHistory))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics export: %w", err)
	}
	return data, nil
}

// ExportPrometheus renders the latest value of each metric in the Prometheus text format.
func (c *Collector) ExportPrometheus() string {
	var b strings.Builder

	for _, name := range c.MetricNames() {
		values := c.Values(name)
		if len(values) == 0 {
			continue
		}
		latest := values[len(values)-1]
		cfg := c.configFor(name)
		promName := sanitizeMetricName(name)

		fmt.Fprintf(&b, "# HELP %s %s\n", promName, helpEscaper.Replace(cfg.Description))
		fmt.Fprintf(&b, "# TYPE %s %s\n", promName, cfg.Kind.PrometheusType())
		fmt.Fprintf(&b, "%s{%s} %s %d\n",
			promName,
			c.formatLabels(latest.Labels),
			strconv.FormatFloat(latest.Value, 'f', -1, 64),
			latest.Timestamp,
		)
	}

	return b.String()
}

func (c *Collector) configFor(name string) Config {
	if cfg, ok := c.MetricConfig(name); ok {
		return cfg
	}
	return Config{Name: name, Kind: KindGauge, Description: name}
}

func (c *Collector) formatLabels(labels map[string]string) string {
	pairs := []string{fmt.Sprintf(`service="%s"`, labelValueEscaper.Replace(c.opts.ServiceName))}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		if k != "service" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, sanitizeLabelName(k), labelValueEscaper.Replace(labels[k])))
	}

	return strings.Join(pairs, ",")
}

// sanitizeMetricName maps characters outside the Prometheus metric name alphabet to underscores.
func sanitizeMetricName(name string) string {
	if model.MetricNameRE.MatchString(name) {
		return name
	}
	return sanitize(name, func(r rune) bool { return r == ':' })
}

func sanitizeLabelName(name string) string {
	if model.LabelNameRE.MatchString(name) {
		return name
	}
	return sanitize(name, func(rune) bool { return false })
}

func sanitize(name string, extra func(rune) bool) string {
	runes := []rune(name)
	out := slices.Clone(runes)
	for i, r := range runes {
		valid := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9') ||
			extra(r)
		if !valid {
			out[i] = '_'
		}
	}
	return string(out)
}
