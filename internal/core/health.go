package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/mozilla-ai/mcprt/internal/domain"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

const (
	CheckState    = "state"
	CheckMetrics  = "metrics"
	CheckHandlers = "handlers"
)

const (
	// scoreWarn and scoreFail are metrics health score thresholds.
	scoreWarn = 70
	scoreFail = 40
)

// HealthCheckFunc is a named health sub-check. The message is optional.
type HealthCheckFunc func(ctx context.Context) (domain.CheckStatus, string)

type namedCheck struct {
	name string
	fn   HealthCheckFunc
}

// AddHealthCheck registers a sub-check that runs on every Health call.
func (s *Server) AddHealthCheck(name string, fn HealthCheckFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: health check name cannot be empty", errors.ErrValidation)
	}
	if fn == nil {
		return fmt.Errorf("%w: health check '%s' has no check function", errors.ErrValidation, name)
	}

	s.checksMu.Lock()
	defer s.checksMu.Unlock()

	for _, c := range s.checks {
		if c.name == name {
			return fmt.Errorf("%w: health check '%s' is already registered", errors.ErrValidation, name)
		}
	}
	s.checks = append(s.checks, namedCheck{name: name, fn: fn})

	return nil
}

// Health runs every sub-check, each with its own timing, and aggregates the results.
// A panicking sub-check is reported as failed.
func (s *Server) Health(ctx context.Context) domain.HealthReport {
	s.checksMu.RLock()
	checks := make([]namedCheck, len(s.checks))
	copy(checks, s.checks)
	s.checksMu.RUnlock()

	results := make(map[string]domain.CheckResult, len(checks))
	for _, c := range checks {
		results[c.name] = s.runCheck(ctx, c)
	}

	now := s.opts.Clock()
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	report := domain.HealthReport{
		Status:    domain.Aggregate(results),
		Checks:    results,
		Timestamp: now,
	}
	if !startedAt.IsZero() {
		report.Uptime = now.Sub(startedAt)
	}

	return report
}

func (s *Server) runCheck(ctx context.Context, c namedCheck) (result domain.CheckResult) {
	start := s.opts.Clock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Health check panicked", "check", c.name, "error", r)
			result = domain.CheckResult{Status: domain.CheckStatusFail, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		result.Duration = s.opts.Clock().Sub(start)
	}()

	status, msg := c.fn(ctx)
	return domain.CheckResult{Status: status, Message: msg}
}

func (s *Server) registerBuiltinChecks() {
	builtins := []namedCheck{
		{name: CheckState, fn: s.checkState},
		{name: CheckMetrics, fn: s.checkMetrics},
		{name: CheckHandlers, fn: s.checkHandlers},
	}
	s.checks = append(s.checks, builtins...)
}

func (s *Server) checkState(context.Context) (domain.CheckStatus, string) {
	switch state := s.State(); state {
	case StateRunning:
		return domain.CheckStatusPass, ""
	case StateStarting, StateStopping:
		return domain.CheckStatusWarn, "server is " + state.String()
	default:
		return domain.CheckStatusFail, "server is " + state.String()
	}
}

func (s *Server) checkMetrics(context.Context) (domain.CheckStatus, string) {
	score := s.recorder.HealthScore()
	msg := fmt.Sprintf("health score %.0f", score)

	switch {
	case score < scoreFail:
		return domain.CheckStatusFail, msg
	case score < scoreWarn:
		return domain.CheckStatusWarn, msg
	default:
		return domain.CheckStatusPass, msg
	}
}

func (s *Server) checkHandlers(context.Context) (domain.CheckStatus, string) {
	s.handlersMu.RLock()
	n := len(s.handlers)
	s.handlersMu.RUnlock()

	if n == 0 {
		return domain.CheckStatusWarn, "no handlers registered"
	}
	return domain.CheckStatusPass, fmt.Sprintf("%d handlers registered", n)
}
