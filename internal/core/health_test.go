package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/mcprt/internal/domain"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

func TestServer_Health_Builtins(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	s, recorder := testServer(t, WithClock(clock))

	report := s.Health(context.Background())
	require.Equal(t, domain.HealthStatusUnhealthy, report.Status, "stopped server fails the state check")
	require.Equal(t, domain.CheckStatusFail, report.Checks[CheckState].Status)
	require.Equal(t, "server is stopped", report.Checks[CheckState].Message)
	require.Equal(t, domain.CheckStatusWarn, report.Checks[CheckHandlers].Status)
	require.Equal(t, domain.CheckStatusPass, report.Checks[CheckMetrics].Status)
	require.Zero(t, report.Uptime)

	require.NoError(t, s.Register(echoRegistration("echo")))
	require.NoError(t, s.Start(context.Background()))
	now = now.Add(90 * time.Second)

	report = s.Health(context.Background())
	require.Equal(t, domain.HealthStatusHealthy, report.Status)
	require.Equal(t, "1 handlers registered", report.Checks[CheckHandlers].Message)
	require.Equal(t, 90*time.Second, report.Uptime)
	require.Equal(t, now, report.Timestamp)

	recorder.mu.Lock()
	recorder.score = 55
	recorder.mu.Unlock()
	report = s.Health(context.Background())
	require.Equal(t, domain.HealthStatusDegraded, report.Status)
	require.Equal(t, "health score 55", report.Checks[CheckMetrics].Message)

	recorder.mu.Lock()
	recorder.score = 10
	recorder.mu.Unlock()
	report = s.Health(context.Background())
	require.Equal(t, domain.HealthStatusUnhealthy, report.Status)
}

func TestServer_AddHealthCheck(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t, WithBuiltinHealthChecks(false))

	pass := func(context.Context) (domain.CheckStatus, string) { return domain.CheckStatusPass, "" }

	require.ErrorIs(t, s.AddHealthCheck("", pass), errors.ErrValidation)
	require.ErrorIs(t, s.AddHealthCheck("db", nil), errors.ErrValidation)
	require.NoError(t, s.AddHealthCheck("db", pass))
	require.ErrorIs(t, s.AddHealthCheck("db", pass), errors.ErrValidation)

	report := s.Health(context.Background())
	require.Equal(t, domain.HealthStatusHealthy, report.Status)
	require.Len(t, report.Checks, 1)
}

func TestServer_Health_PanickingCheck(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t, WithBuiltinHealthChecks(false))
	require.NoError(t, s.AddHealthCheck("fragile", func(context.Context) (domain.CheckStatus, string) {
		panic("disk gone")
	}))
	require.NoError(t, s.AddHealthCheck("cache", func(context.Context) (domain.CheckStatus, string) {
		return domain.CheckStatusWarn, "cold"
	}))

	report := s.Health(context.Background())
	require.Equal(t, domain.HealthStatusUnhealthy, report.Status)
	require.Equal(t, domain.CheckStatusFail, report.Checks["fragile"].Status)
	require.Contains(t, report.Checks["fragile"].Message, "disk gone")
	require.Equal(t, domain.CheckStatusWarn, report.Checks["cache"].Status)
	require.Equal(t, "cold", report.Checks["cache"].Message)
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks map[string]domain.CheckResult
		want   domain.HealthStatus
	}{
		{name: "no checks", want: domain.HealthStatusHealthy},
		{
			name:   "all pass",
			checks: map[string]domain.CheckResult{"a": {Status: domain.CheckStatusPass}},
			want:   domain.HealthStatusHealthy,
		},
		{
			name: "warn degrades",
			checks: map[string]domain.CheckResult{
				"a": {Status: domain.CheckStatusPass},
				"b": {Status: domain.CheckStatusWarn},
			},
			want: domain.HealthStatusDegraded,
		},
		{
			name: "fail wins over warn",
			checks: map[string]domain.CheckResult{
				"a": {Status: domain.CheckStatusWarn},
				"b": {Status: domain.CheckStatusFail},
			},
			want: domain.HealthStatusUnhealthy,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, domain.Aggregate(tc.checks))
		})
	}
}
