package breaker

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/mcprt/internal/errors"
)

var errDownstream = stdErrors.New("downstream unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestBreaker(t *testing.T, clock *fakeClock, opt ...Option) *Breaker {
	t.Helper()

	b, err := New(append([]Option{WithClock(clock.Now)}, opt...)...)
	require.NoError(t, err)
	return b
}

func failing(calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return errDownstream
	}
}

func succeeding(calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return nil
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "zero threshold", opt: WithFailureThreshold(0)},
		{name: "negative reset timeout", opt: WithResetTimeout(-time.Second)},
		{name: "zero monitoring period", opt: WithMonitoringPeriod(0)},
		{name: "zero success threshold", opt: WithSuccessThreshold(0)},
		{name: "nil clock", opt: WithClock(nil)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tc.opt)
			require.Error(t, err)
			require.ErrorIs(t, err, errors.ErrConfiguration)
		})
	}
}

func TestNewOptions_Defaults(t *testing.T) {
	t.Parallel()

	opts, err := NewOptions(nil)
	require.NoError(t, err)
	require.Equal(t, 5, opts.FailureThreshold)
	require.Equal(t, time.Minute, opts.ResetTimeout)
	require.Equal(t, 10*time.Second, opts.MonitoringPeriod)
	require.Equal(t, 3, opts.SuccessThreshold)
}

func TestBreaker_TripsAndRecovers(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(t, clock, WithFailureThreshold(2), WithResetTimeout(time.Minute))
	ctx := context.Background()
	calls := 0

	require.ErrorIs(t, b.Execute(ctx, failing(&calls)), errDownstream)
	require.Equal(t, StateClosed, b.State())
	require.ErrorIs(t, b.Execute(ctx, failing(&calls)), errDownstream)
	require.Equal(t, StateOpen, b.State())
	require.Equal(t, 2, calls)

	err := b.Execute(ctx, succeeding(&calls))
	require.ErrorIs(t, err, errors.ErrCircuitOpen)
	require.Equal(t, 2, calls, "open breaker must not invoke the wrapped function")

	clock.Advance(time.Minute)

	require.NoError(t, b.Execute(ctx, succeeding(&calls)))
	require.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, succeeding(&calls)))
	require.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, succeeding(&calls)))
	require.Equal(t, StateClosed, b.State())
	require.Equal(t, 0, b.Failures())
	require.Equal(t, 5, calls)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(t, clock, WithFailureThreshold(1), WithResetTimeout(time.Second))
	ctx := context.Background()
	calls := 0

	require.Error(t, b.Execute(ctx, failing(&calls)))
	require.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	require.NoError(t, b.Execute(ctx, succeeding(&calls)))
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, b.Execute(ctx, failing(&calls)), errDownstream)
	require.Equal(t, StateOpen, b.State())

	// The reset timeout restarts from the half-open failure.
	clock.Advance(500 * time.Millisecond)
	require.ErrorIs(t, b.Execute(ctx, succeeding(&calls)), errors.ErrCircuitOpen)
	require.Equal(t, 3, calls)
}

func TestBreaker_HalfOpenAdmitsOneTrialAtATime(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(t, clock, WithFailureThreshold(1), WithResetTimeout(time.Second))
	ctx := context.Background()
	calls := 0

	require.Error(t, b.Execute(ctx, failing(&calls)))
	clock.Advance(time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	trialErr := make(chan error, 1)
	go func() {
		trialErr <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	require.Equal(t, StateHalfOpen, b.State())
	err := b.Execute(ctx, succeeding(&calls))
	require.ErrorIs(t, err, errors.ErrCircuitOpen)
	require.ErrorContains(t, err, "half-open trial in progress")
	require.Equal(t, 1, calls)

	close(release)
	require.NoError(t, <-trialErr)

	// The trial finished, so the next call is the next trial.
	require.NoError(t, b.Execute(ctx, succeeding(&calls)))
	require.Equal(t, 2, calls)
	require.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(t, clock, WithFailureThreshold(1), WithResetTimeout(time.Second))
	ctx := context.Background()

	require.Panics(t, func() {
		_ = b.Execute(ctx, func(context.Context) error { panic("boom") })
	})
	require.Equal(t, StateOpen, b.State())

	// A panicking trial does not leave the half-open slot occupied.
	clock.Advance(time.Second)
	require.Panics(t, func() {
		_ = b.Execute(ctx, func(context.Context) error { panic("boom") })
	})
	require.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	calls := 0
	require.NoError(t, b.Execute(ctx, succeeding(&calls)))
	require.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_FailuresForgottenAfterMonitoringPeriod(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(t, clock,
		WithFailureThreshold(2),
		WithMonitoringPeriod(10*time.Second),
	)
	ctx := context.Background()
	calls := 0

	require.Error(t, b.Execute(ctx, failing(&calls)))
	require.Equal(t, 1, b.Failures())

	clock.Advance(10 * time.Second)
	require.Error(t, b.Execute(ctx, failing(&calls)))
	require.Equal(t, 1, b.Failures())
	require.Equal(t, StateClosed, b.State())

	clock.Advance(time.Second)
	require.Error(t, b.Execute(ctx, failing(&calls)))
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_SuccessDoesNotResetClosedFailures(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(t, clock, WithFailureThreshold(2))
	ctx := context.Background()
	calls := 0

	require.Error(t, b.Execute(ctx, failing(&calls)))
	require.NoError(t, b.Execute(ctx, succeeding(&calls)))
	require.Error(t, b.Execute(ctx, failing(&calls)))
	require.Equal(t, StateOpen, b.State())
}

func TestDo(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(t, clock, WithFailureThreshold(1))

	v, err := Do(context.Background(), b, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	_, err = Do(context.Background(), b, func(context.Context) (string, error) { return "", errDownstream })
	require.ErrorIs(t, err, errDownstream)

	v, err = Do(context.Background(), b, func(context.Context) (string, error) { return "unreachable", nil })
	require.ErrorIs(t, err, errors.ErrCircuitOpen)
	require.Empty(t, v)
}

func TestBreaker_StateChangeHookAndReset(t *testing.T) {
	t.Parallel()

	var transitions []string
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(t, clock,
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithResetTimeout(time.Second),
		WithStateChangeHook(func(from State, to State) {
			transitions = append(transitions, string(from)+"->"+string(to))
		}),
	)
	ctx := context.Background()
	calls := 0

	require.Error(t, b.Execute(ctx, failing(&calls)))
	clock.Advance(time.Second)
	require.NoError(t, b.Execute(ctx, succeeding(&calls)))
	require.Error(t, b.Execute(ctx, failing(&calls)))
	b.Reset()
	b.Reset()

	require.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->closed",
		"closed->open",
		"open->closed",
	}, transitions)
	require.Equal(t, StateClosed, b.State())
	require.Equal(t, 0, b.Failures())
}
