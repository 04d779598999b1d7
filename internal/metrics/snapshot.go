package metrics

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// processSample is the OS-level view of the current process.
type processSample struct {
	// user and system are cumulative CPU seconds.
	user   float64
	system float64
	rss    uint64
}

func sampleCurrentProcess() (processSample, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return processSample{}, fmt.Errorf("failed to inspect current process: %w", err)
	}

	times, err := p.Times()
	if err != nil {
		return processSample{}, fmt.Errorf("failed to read process CPU times: %w", err)
	}

	mem, err := p.MemoryInfo()
	if err != nil {
		return processSample{}, fmt.Errorf("failed to read process memory: %w", err)
	}

	return processSample{
		user:   times.User,
		system: times.System,
		rss:    mem.RSS,
	}, nil
}

// measureSchedulerDelay reports how long a freshly spawned goroutine waits before it runs.
func measureSchedulerDelay() time.Duration {
	start := time.Now()
	done := make(chan struct{})
	go func() {
		close(done)
	}()
	<-done
	return time.Since(start)
}

// RecordPerformanceSnapshot captures memory, CPU and uptime figures, appends them to the
// snapshot buffer and records each figure as a gauge.
func (c *Collector) RecordPerformanceSnapshot() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	delay := measureSchedulerDelay()
	goroutines := runtime.NumGoroutine()

	sample, sampleErr := c.sampleProcess()
	if sampleErr != nil {
		c.logger.Warn("Failed to sample process statistics", "error", sampleErr)
	}

	now := c.opts.Clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	var cpu CPUSnapshot
	if sampleErr == nil {
		if c.lastCPU != nil {
			cpu.User = (sample.user - c.lastCPU.user) * 1000
			cpu.System = (sample.system - c.lastCPU.system) * 1000
		}
		c.lastCPU = &sample
	}

	snap := PerformanceSnapshot{
		Timestamp: now.UnixMilli(),
		Memory: MemorySnapshot{
			HeapUsed:  mem.HeapAlloc,
			HeapTotal: mem.HeapSys,
			External:  mem.Sys - mem.HeapSys,
			Resident:  sample.rss,
		},
		CPU:            cpu,
		SchedulerDelay: delay,
		Goroutines:     goroutines,
		Uptime:         now.Sub(c.startTime),
	}

	c.snapshots = append(c.snapshots, snap)
	if len(c.snapshots) > c.opts.MaxSnapshots {
		c.snapshots = slices.Clone(c.snapshots[len(c.snapshots)-c.opts.MaxSnapshots/2:])
	}

	c.recordLocked(MetricHeapUsed, float64(snap.Memory.HeapUsed), nil)
	c.recordLocked(MetricHeapTotal, float64(snap.Memory.HeapTotal), nil)
	c.recordLocked(MetricMemoryExternal, float64(snap.Memory.External), nil)
	c.recordLocked(MetricMemoryResident, float64(snap.Memory.Resident), nil)
	c.recordLocked(MetricCPUUser, snap.CPU.User, nil)
	c.recordLocked(MetricCPUSystem, snap.CPU.System, nil)
	c.recordLocked(MetricSchedulerDelay, durationMillis(snap.SchedulerDelay), nil)
	c.recordLocked(MetricGoroutines, float64(snap.Goroutines), nil)
	c.recordLocked(MetricUptime, durationMillis(snap.Uptime), nil)
}
