package metrics

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/errors"
)

const (
	MetricRequestsTotal   = "requests.total"
	MetricRequestsStarted = "requests.started"
	MetricToolDuration    = "tool.execution.duration"
	MetricToolSuccess     = "tool.execution.success"
	MetricToolError       = "tool.execution.error"
	MetricHeapUsed        = "process.memory.heap_used"
	MetricHeapTotal       = "process.memory.heap_total"
	MetricMemoryExternal  = "process.memory.external"
	MetricMemoryResident  = "process.memory.resident"
	MetricCPUUser         = "process.cpu.user"
	MetricCPUSystem       = "process.cpu.system"
	MetricSchedulerDelay  = "process.scheduler_delay"
	MetricGoroutines      = "process.goroutines"
	MetricUptime          = "process.uptime"
)

const labelTool = "tool"

// Collector records timestamped numeric observations, aggregates them and exports them.
// It is safe for concurrent use by multiple goroutines.
// NewCollector should be used to create instances of Collector, and Shutdown must be called
// to stop its background tasks.
type Collector struct {
	logger hclog.Logger
	opts   Options

	mu            sync.RWMutex
	configs       map[string]Config
	values        map[string][]Value
	responseTimes []float64
	snapshots     []PerformanceSnapshot
	requestCount  int64
	errorCount    int64
	totalDuration float64
	toolCounts    map[string]int64
	lastCPU       *processSample
	startTime     time.Time

	listenersMu    sync.Mutex
	listeners      map[int]func(CleanupEvent)
	nextListenerID int

	sampleProcess func() (processSample, error)

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewCollector creates a Collector, records an initial performance snapshot and,
// unless disabled, starts the cleanup and snapshot background tasks.
func NewCollector(logger hclog.Logger, opt ...Option) (*Collector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfiguration, err)
	}

	c := &Collector{
		logger:        logger.Named("metrics"),
		opts:          opts,
		configs:       make(map[string]Config),
		values:        make(map[string][]Value),
		toolCounts:    make(map[string]int64),
		listeners:     make(map[int]func(CleanupEvent)),
		startTime:     opts.Clock(),
		sampleProcess: sampleCurrentProcess,
	}

	c.registerDefaults()
	c.RecordPerformanceSnapshot()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if opts.BackgroundTasks {
		c.startTask(ctx, "cleanup", opts.CleanupInterval, func() { c.Cleanup() })
		c.startTask(ctx, "snapshot", opts.SnapshotInterval, c.RecordPerformanceSnapshot)
	}

	return c, nil
}

func (c *Collector) registerDefaults() {
	defaults := []Config{
		{Name: MetricRequestsTotal, Kind: KindCounter, Description: "Total number of handler invocations"},
		{Name: MetricRequestsStarted, Kind: KindCounter, Description: "Handler invocations started"},
		{Name: MetricToolDuration, Kind: KindTimer, Description: "Handler execution duration", Unit: "ms"},
		{Name: MetricToolSuccess, Kind: KindCounter, Description: "Successful handler executions"},
		{Name: MetricToolError, Kind: KindCounter, Description: "Failed handler executions"},
		{Name: MetricHeapUsed, Kind: KindGauge, Description: "Heap bytes in use", Unit: "bytes"},
		{Name: MetricHeapTotal, Kind: KindGauge, Description: "Heap bytes obtained from the OS", Unit: "bytes"},
		{Name: MetricMemoryExternal, Kind: KindGauge, Description: "Non-heap runtime memory", Unit: "bytes"},
		{Name: MetricMemoryResident, Kind: KindGauge, Description: "Resident set size", Unit: "bytes"},
		{Name: MetricCPUUser, Kind: KindGauge, Description: "User CPU time since previous snapshot", Unit: "ms"},
		{Name: MetricCPUSystem, Kind: KindGauge, Description: "System CPU time since previous snapshot", Unit: "ms"},
		{Name: MetricSchedulerDelay, Kind: KindGauge, Description: "Goroutine scheduling delay", Unit: "ms"},
		{Name: MetricGoroutines, Kind: KindGauge, Description: "Number of goroutines"},
		{Name: MetricUptime, Kind: KindGauge, Description: "Collector uptime", Unit: "ms"},
	}
	for _, cfg := range defaults {
		c.configs[cfg.Name] = cfg
	}
}

// startTask runs fn every interval until ctx is cancelled.
// Panics in fn are recovered and logged since there is no caller to propagate them to.
func (c *Collector) startTask(ctx context.Context, name string, interval time.Duration, fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Debug("Stopping background task", "task", name)
				return
			case <-ticker.C:
				c.runTask(name, fn)
			}
		}
	}()
}

func (c *Collector) runTask(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Background task failed", "task", name, "error", r)
		}
	}()
	fn()
}

// RegisterMetric upserts metric metadata. Existing history is kept.
func (c *Collector) RegisterMetric(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[cfg.Name] = cfg

	return nil
}

// MetricConfig returns the registered configuration for a metric.
func (c *Collector) MetricConfig(name string) (Config, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.configs[name]
	return cfg, ok
}

// Record appends a timestamped value to the named metric.
// Once the sequence exceeds the retained maximum the oldest values are dropped.
// NaN and infinite values are logged and dropped, since neither export format can carry them.
func (c *Collector) Record(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(name, value, labels)
}

func (c *Collector) recordLocked(name string, value float64, labels map[string]string) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		c.logger.Warn("Dropping non-finite metric value", "metric", name, "value", value)
		return
	}

	v := Value{
		Value:     value,
		Timestamp: c.opts.Clock().UnixMilli(),
	}
	if len(labels) > 0 {
		v.Labels = maps.Clone(labels)
	}

	seq := append(c.values[name], v)
	if excess := len(seq) - c.opts.MaxValues; excess > 0 {
		seq = seq[excess:]
	}
	c.values[name] = seq
}

// Increment records latest+delta, so counters live in the same sequence as gauges.
func (c *Collector) Increment(name string, delta float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incrementLocked(name, delta, labels)
}

func (c *Collector) incrementLocked(name string, delta float64, labels map[string]string) {
	var latest float64
	if seq := c.values[name]; len(seq) > 0 {
		latest = seq[len(seq)-1].Value
	}
	c.recordLocked(name, latest+delta, labels)
}

// Timing records a duration and appends it to the global response time samples.
func (c *Collector) Timing(name string, duration time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timingLocked(name, duration, labels)
}

func (c *Collector) timingLocked(name string, duration time.Duration, labels map[string]string) {
	ms := durationMillis(duration)
	c.recordLocked(name, ms, labels)

	c.responseTimes = append(c.responseTimes, ms)
	if len(c.responseTimes) > c.opts.MaxResponseTimes {
		c.responseTimes = slices.Clone(c.responseTimes[len(c.responseTimes)-c.opts.MaxResponseTimes/2:])
	}
}

// RecordToolExecution is the default instrumentation point for handler invocation.
func (c *Collector) RecordToolExecution(name string, duration time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestCount++
	if !success {
		c.errorCount++
	}
	c.totalDuration += durationMillis(duration)
	c.toolCounts[name]++

	labels := map[string]string{labelTool: name}
	c.incrementLocked(MetricRequestsTotal, 1, nil)
	c.timingLocked(MetricToolDuration, duration, labels)
	if success {
		c.incrementLocked(MetricToolSuccess, 1, labels)
	} else {
		c.incrementLocked(MetricToolError, 1, labels)
	}
}

// RecordRequestStarted marks the start of a handler invocation.
func (c *Collector) RecordRequestStarted(name string) {
	c.Increment(MetricRequestsStarted, 1, map[string]string{labelTool: name})
}

// ToolCounts returns a copy of the per-handler invocation counters.
func (c *Collector) ToolCounts() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.toolCounts)
}

// snapshotValues copies the values of a metric at or after since (unix millis).
// Derived statistics are always computed from the copy, never the live sequence.
func (c *Collector) snapshotValues(name string, since int64) []Value {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seq := c.values[name]
	out := make([]Value, 0, len(seq))
	for _, v := range seq {
		if v.Timestamp >= since {
			out = append(out, v)
		}
	}
	return out
}

// Values returns a copy of all retained values for a metric.
func (c *Collector) Values(name string) []Value {
	return c.snapshotValues(name, math.MinInt64)
}

// MetricNames returns the sorted names of all metrics that have retained values.
func (c *Collector) MetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.values))
	for name, seq := range c.values {
		if len(seq) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Stats computes statistics over values recorded at or after since.
// A zero since means all history. The boolean is false when no values are in range.
func (c *Collector) Stats(name string, since time.Time) (Stats, bool) {
	values := c.snapshotValues(name, sinceMillis(since))
	if len(values) == 0 {
		return Stats{}, false
	}
	return computeStats(values), true
}

// TimeSeries buckets values into fixed-width, aligned windows and reduces each bucket.
// Points are returned in ascending timestamp order.
func (c *Collector) TimeSeries(name string, agg Aggregation, bucket time.Duration, since time.Time) ([]TimeSeriesPoint, error) {
	if _, err := ParseAggregation(string(agg)); err != nil {
		return nil, err
	}
	size := bucket.Milliseconds()
	if size <= 0 {
		return nil, fmt.Errorf("%w: bucket size must be at least 1ms, got %v", errors.ErrValidation, bucket)
	}

	buckets := make(map[int64][]float64)
	for _, v := range c.snapshotValues(name, sinceMillis(since)) {
		key := floorDiv(v.Timestamp, size) * size
		buckets[key] = append(buckets[key], v.Value)
	}

	points := make([]TimeSeriesPoint, 0, len(buckets))
	for ts, vals := range buckets {
		points = append(points, TimeSeriesPoint{
			Timestamp: ts,
			Value:     aggregate(agg, vals),
			Count:     len(vals),
		})
	}
	slices.SortFunc(points, func(a, b TimeSeriesPoint) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})

	return points, nil
}

// ResponseTimePercentiles returns p50, p95 and p99 over the global response time samples.
func (c *Collector) ResponseTimePercentiles() (p50, p95, p99 float64) {
	c.mu.RLock()
	samples := slices.Clone(c.responseTimes)
	c.mu.RUnlock()

	if len(samples) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(samples)
	return percentile(samples, 0.50), percentile(samples, 0.95), percentile(samples, 0.99)
}

// Snapshots returns a copy of the performance snapshot buffer.
func (c *Collector) Snapshots() []PerformanceSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.snapshots)
}

// OnCleanup subscribes to cleanup events. The returned function removes the listener.
func (c *Collector) OnCleanup(fn func(CleanupEvent)) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = fn

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// Cleanup prunes every metric and the snapshot buffer to entries inside the retention window.
// Entries strictly older than the cutoff are removed.
func (c *Collector) Cleanup() CleanupEvent {
	now := c.opts.Clock()
	cutoff := now.Add(-c.opts.Retention).UnixMilli()

	c.mu.Lock()
	removed := 0
	for name, seq := range c.values {
		stale := 0
		for _, v := range seq {
			if v.Timestamp < cutoff {
				stale++
			}
		}
		if stale == 0 {
			continue
		}
		removed += stale
		if stale == len(seq) {
			delete(c.values, name)
			continue
		}
		// Values are appended in completion order, which is not guaranteed to be timestamp order.
		c.values[name] = slices.DeleteFunc(slices.Clone(seq), func(v Value) bool { return v.Timestamp < cutoff })
	}

	snapshotsBefore := len(c.snapshots)
	c.snapshots = slices.DeleteFunc(c.snapshots, func(s PerformanceSnapshot) bool { return s.Timestamp < cutoff })
	snapshotsRemoved := snapshotsBefore - len(c.snapshots)
	c.mu.Unlock()

	event := CleanupEvent{
		Removed:          removed,
		SnapshotsRemoved: snapshotsRemoved,
		Timestamp:        now,
	}
	c.logger.Debug("Metrics cleanup complete", "removed", event.Removed, "snapshots_removed", event.SnapshotsRemoved)
	c.emitCleanup(event)

	return event
}

func (c *Collector) emitCleanup(event CleanupEvent) {
	c.listenersMu.Lock()
	listeners := slices.Collect(maps.Values(c.listeners))
	c.listenersMu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Cleanup listener panicked", "error", r)
				}
			}()
			fn(event)
		}()
	}
}

// Reset clears all stored data and counters. Registrations and background tasks are kept.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = make(map[string][]Value)
	c.responseTimes = nil
	c.snapshots = nil
	c.requestCount = 0
	c.errorCount = 0
	c.totalDuration = 0
	c.toolCounts = make(map[string]int64)
	c.lastCPU = nil
}

// Shutdown cancels the background tasks, waits for them to exit and detaches all listeners.
// It is safe to call more than once.
func (c *Collector) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.cancel()
		c.wg.Wait()

		c.listenersMu.Lock()
		c.listeners = make(map[int]func(CleanupEvent))
		c.listenersMu.Unlock()

		c.logger.Debug("Metrics collector shut down")
	})
}

func computeStats(values []Value) Stats {
	sorted := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sorted[i] = v.Value
		sum += v.Value
	}
	sort.Float64s(sorted)

	return Stats{
		Count:  len(values),
		Sum:    sum,
		Avg:    sum / float64(len(values)),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P95:    percentile(sorted, 0.95),
		P99:    percentile(sorted, 0.99),
		Latest: values[len(values)-1].Value,
		Oldest: values[0].Value,
	}
}

// percentile uses the nearest-rank index floor(n*p), clamped to the last element.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func aggregate(agg Aggregation, vals []float64) float64 {
	switch agg {
	case AggregationCount:
		return float64(len(vals))
	case AggregationSum, AggregationAvg:
		var sum float64
		for _, v := range vals {
			sum += v
		}
		if agg == AggregationAvg {
			return sum / float64(len(vals))
		}
		return sum
	case AggregationMin:
		return slices.Min(vals)
	case AggregationMax:
		return slices.Max(vals)
	case AggregationP95, AggregationP99:
		sorted := slices.Clone(vals)
		sort.Float64s(sorted)
		if agg == AggregationP95 {
			return percentile(sorted, 0.95)
		}
		return percentile(sorted, 0.99)
	default:
		return 0
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func sinceMillis(since time.Time) int64 {
	if since.IsZero() {
		return math.MinInt64
	}
	return since.UnixMilli()
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
