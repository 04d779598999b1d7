package domain

import "time"

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

// HealthStatus represents the aggregate health of a runtime.
type HealthStatus string

// CheckStatus is the outcome of a single named health sub-check.
type CheckStatus string

// CheckResult records the outcome of one health sub-check.
type CheckResult struct {
	Status   CheckStatus
	Duration time.Duration
	Message  string
}

// HealthReport is the aggregate of all sub-checks at a point in time.
type HealthReport struct {
	Status    HealthStatus
	Checks    map[string]CheckResult
	Timestamp time.Time
	Uptime    time.Duration
}

// Aggregate reduces sub-check results to a single status.
// Any failing check makes the report unhealthy, any warning makes it degraded.
func Aggregate(checks map[string]CheckResult) HealthStatus {
	status := HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case CheckStatusFail:
			return HealthStatusUnhealthy
		case CheckStatusWarn:
			status = HealthStatusDegraded
		}
	}
	return status
}
