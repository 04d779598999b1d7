// Package breaker guards calls to fragile operations with a failure-threshold circuit breaker.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mozilla-ai/mcprt/internal/errors"
)

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// State is the circuit state.
type State string

// Breaker rejects calls without attempting them once FailureThreshold failures
// have been seen, until ResetTimeout has elapsed since the last failure.
// It is safe for concurrent use.
type Breaker struct {
	opts Options

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	successes   int

	// trial is set while a half-open trial call is in flight.
	trial bool
}

// New creates a closed Breaker.
func New(opt ...Option) (*Breaker, error) {
	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfiguration, err)
	}

	return &Breaker{
		opts:  opts,
		state: StateClosed,
	}, nil
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed still reports open until the next call is attempted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Execute runs fn unless the circuit is open.
// A rejected call returns an error wrapping errors.ErrCircuitOpen and fn is not invoked.
// While half-open one trial call runs at a time; concurrent calls are rejected until it completes.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.allow()
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		if !completed {
			// fn panicked.
			b.onFailure(trial)
		}
	}()

	err = fn(ctx)
	completed = true
	if err != nil {
		b.onFailure(trial)
		return err
	}

	b.onSuccess(trial)
	return nil
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// Reset returns the breaker to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.lastFailure = time.Time{}
	b.trial = false
	b.mu.Unlock()

	b.notify(from, StateClosed)
}

// allow admits a call and reports whether it is the half-open trial.
func (b *Breaker) allow() (bool, error) {
	b.mu.Lock()

	now := b.opts.Clock()
	from := b.state

	switch b.state {
	case StateClosed:
		if b.failures > 0 && now.Sub(b.lastFailure) >= b.opts.MonitoringPeriod {
			b.failures = 0
		}
	case StateOpen:
		if now.Sub(b.lastFailure) < b.opts.ResetTimeout {
			retryIn := b.opts.ResetTimeout - now.Sub(b.lastFailure)
			b.mu.Unlock()
			return false, fmt.Errorf("%w: retry in %v", errors.ErrCircuitOpen, retryIn.Round(time.Millisecond))
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.trial = false
	}

	trial := false
	if b.state == StateHalfOpen {
		if b.trial {
			b.mu.Unlock()
			return false, fmt.Errorf("%w: half-open trial in progress", errors.ErrCircuitOpen)
		}
		b.trial = true
		trial = true
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return trial, nil
}

func (b *Breaker) onSuccess(trial bool) {
	b.mu.Lock()
	from := b.state
	if trial {
		b.trial = false
	}
	if b.state == StateHalfOpen && trial {
		b.successes++
		if b.successes >= b.opts.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *Breaker) onFailure(trial bool) {
	b.mu.Lock()
	from := b.state
	if trial {
		b.trial = false
	}
	b.lastFailure = b.opts.Clock()
	b.successes = 0

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
	case StateOpen:
		// A call admitted before the circuit opened; it only extends the cooldown.
	default:
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.state = StateOpen
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *Breaker) notify(from State, to State) {
	if from == to || b.opts.OnStateChange == nil {
		return
	}
	b.opts.OnStateChange(from, to)
}
