// Package core implements the server runtime: the lifecycle state machine,
// the handler registry, the event bus and handler invocation.
package core

import (
	"context"
	stdErrors "errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/domain"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

var _ contracts.Runtime = (*Server)(nil)

// Server owns the handler registry and lifecycle of one runtime instance.
// NewServer should be used to create instances of Server.
type Server struct {
	logger   hclog.Logger
	cfg      *config.Config
	recorder contracts.ExecutionRecorder
	opts     Options
	bus      *eventBus

	// lifecycleMu serializes Start, Stop and Restart.
	lifecycleMu sync.Mutex

	mu         sync.RWMutex
	state      State
	startedAt  time.Time
	transports []contracts.Transport

	handlersMu sync.RWMutex
	handlers   map[string]*handlerEntry

	checksMu sync.RWMutex
	checks   []namedCheck
}

// NewServer creates a stopped Server.
func NewServer(deps Dependencies, opt ...Option) (*Server, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}

	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger.Named("core")
	s := &Server{
		logger:   logger,
		cfg:      deps.Config,
		recorder: deps.Recorder,
		opts:     opts,
		bus:      newEventBus(logger),
		state:    StateStopped,
		handlers: make(map[string]*handlerEntry),
	}

	if opts.BuiltinHealthChecks {
		s.registerBuiltinChecks()
	}

	return s, nil
}

// ID returns the server identifier.
func (s *Server) ID() string {
	return s.opts.ServerID
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a listener for all events. The returned function unsubscribes it.
func (s *Server) Subscribe(fn Listener) func() {
	return s.bus.subscribe(fn)
}

// AttachTransport adds a transport that is started by Start and closed by Stop.
// Transports can only be attached while the server is stopped.
func (s *Server) AttachTransport(t contracts.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return fmt.Errorf("%w: cannot attach transport while %s", errors.ErrInvalidState, s.state)
	}
	for _, existing := range s.transports {
		if existing.Name() == t.Name() {
			return fmt.Errorf("%w: transport '%s' already attached", errors.ErrValidation, t.Name())
		}
	}
	s.transports = append(s.transports, t)

	return nil
}

// Register adds a handler to the registry.
// A duplicate name fails with errors.ErrValidation and leaves the existing registration untouched.
func (s *Server) Register(reg Registration) error {
	entry, err := newHandlerEntry(reg)
	if err != nil {
		return err
	}

	s.handlersMu.Lock()
	if _, exists := s.handlers[entry.reg.Name]; exists {
		s.handlersMu.Unlock()
		return fmt.Errorf("%w: handler '%s' is already registered", errors.ErrValidation, entry.reg.Name)
	}
	s.handlers[entry.reg.Name] = entry
	s.handlersMu.Unlock()

	s.logger.Debug("Registered handler", "name", entry.reg.Name, "category", entry.reg.Category)
	s.bus.publish(HandlerRegistered{EventMeta: s.meta(), Name: entry.reg.Name})

	return nil
}

// Handlers returns the registered handler descriptors sorted by name.
func (s *Server) Handlers() []domain.HandlerDescriptor {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()

	out := make([]domain.HandlerDescriptor, 0, len(s.handlers))
	for _, h := range s.handlers {
		out = append(out, h.descriptor())
	}
	slices.SortFunc(out, func(a, b domain.HandlerDescriptor) int { return strings.Compare(a.Name, b.Name) })

	return out
}

// Handler returns the descriptor for a registered handler.
func (s *Server) Handler(name string) (domain.HandlerDescriptor, bool) {
	entry, ok := s.lookup(name)
	if !ok {
		return domain.HandlerDescriptor{}, false
	}
	return entry.descriptor(), true
}

func (s *Server) lookup(name string) (*handlerEntry, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	entry, ok := s.handlers[name]
	return entry, ok
}

// Start validates the configuration, starts attached transports in order and
// transitions to running. It is only valid from the stopped state.
// On failure the server transitions to error and the failure is returned.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.start(ctx)
}

// Stop closes attached transports and transitions to stopped.
// It is valid from running or error.
func (s *Server) Stop(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.stop(ctx)
}

// Restart applies the restart policy:
// from running it performs a graceful Stop followed by Start;
// from error it stops first, which normalizes the state to stopped;
// from stopped it is equivalent to Start.
// Restarting while starting or stopping fails with errors.ErrInvalidState.
func (s *Server) Restart(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	switch current := s.State(); current {
	case StateRunning, StateError:
		s.logger.Info("Restarting server", "from", current)
		if err := s.stop(ctx); err != nil {
			return fmt.Errorf("restart aborted, stop failed: %w", err)
		}
	case StateStopped:
	default:
		return fmt.Errorf("%w: cannot restart while %s", errors.ErrInvalidState, current)
	}

	return s.start(ctx)
}

// Fail records a fatal fault reported by a transport after startup.
// It is ignored unless the server is starting, running or stopping.
func (s *Server) Fail(err error) {
	s.mu.Lock()
	from := s.state
	if from != StateStarting && from != StateRunning && from != StateStopping {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.mu.Unlock()

	s.logger.Error("Server failed", "state", from, "error", err)
	s.bus.publish(StateChanged{EventMeta: s.meta(), From: from, To: StateError})
	s.bus.publish(ServerError{EventMeta: s.meta(), Err: err})
}

func (s *Server) start(ctx context.Context) error {
	if err := s.transition(State.canStart, StateStarting, "start"); err != nil {
		return err
	}

	if err := s.cfg.Validate(); err != nil {
		return s.failStartup(err)
	}

	transports := s.attached()
	for i, t := range transports {
		if err := t.Start(ctx); err != nil {
			s.closeTransports(ctx, transports[:i])
			return s.failStartup(fmt.Errorf("failed to start transport '%s': %w", t.Name(), err))
		}
		s.logger.Info("Transport started", "transport", t.Name())
	}

	s.mu.Lock()
	s.startedAt = s.opts.Clock()
	s.mu.Unlock()

	s.setState(StateRunning)
	s.logger.Info("Server started", "name", s.cfg.Server.Name, "version", s.cfg.Server.Version, "id", s.opts.ServerID)
	s.bus.publish(ServerStarted{EventMeta: s.meta()})

	return nil
}

func (s *Server) stop(ctx context.Context) error {
	if err := s.transition(State.canStop, StateStopping, "stop"); err != nil {
		return err
	}

	if err := s.closeTransports(ctx, s.attached()); err != nil {
		s.setState(StateError)
		s.bus.publish(ServerError{EventMeta: s.meta(), Err: err})
		return err
	}

	s.mu.Lock()
	s.startedAt = time.Time{}
	s.mu.Unlock()

	s.setState(StateStopped)
	s.logger.Info("Server stopped", "id", s.opts.ServerID)
	s.bus.publish(ServerStopped{EventMeta: s.meta()})

	return nil
}

// closeTransports closes all transports concurrently and returns the first error.
func (s *Server) closeTransports(ctx context.Context, transports []contracts.Transport) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range transports {
		g.Go(func() error {
			if err := t.Close(gctx); err != nil {
				s.logger.Error("Failed to close transport", "transport", t.Name(), "error", err)
				return fmt.Errorf("failed to close transport '%s': %w", t.Name(), err)
			}
			s.logger.Info("Transport closed", "transport", t.Name())
			return nil
		})
	}
	return g.Wait()
}

func (s *Server) failStartup(err error) error {
	s.setState(StateError)
	s.logger.Error("Server failed to start", "error", err)
	s.bus.publish(ServerError{EventMeta: s.meta(), Err: err})
	return err
}

// transition moves to next if allowed reports true for the current state.
func (s *Server) transition(allowed func(State) bool, next State, op string) error {
	s.mu.Lock()
	from := s.state
	if !allowed(from) {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot %s while %s", errors.ErrInvalidState, op, from)
	}
	s.state = next
	s.mu.Unlock()

	s.bus.publish(StateChanged{EventMeta: s.meta(), From: from, To: next})
	return nil
}

func (s *Server) setState(next State) {
	s.mu.Lock()
	from := s.state
	s.state = next
	s.mu.Unlock()

	if from != next {
		s.bus.publish(StateChanged{EventMeta: s.meta(), From: from, To: next})
	}
}

func (s *Server) attached() []contracts.Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transports)
}

// Invoke validates params against the handler's input schema and runs the handler.
// An unknown handler fails with errors.ErrNotFound and invalid params with errors.ErrValidation.
// Once the handler is reached, the outcome is always recorded and a failure is returned
// in the result's Failure field rather than as an error.
func (s *Server) Invoke(ctx context.Context, name string, params map[string]any) (*domain.InvocationResult, error) {
	entry, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: handler '%s'", errors.ErrNotFound, name)
	}

	if params == nil {
		params = map[string]any{}
	}
	if err := entry.validate(params); err != nil {
		return nil, err
	}

	requestID, ok := RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}

	s.recorder.RecordRequestStarted(name)
	start := s.opts.Clock()

	result, err := entry.call(ctx, params)

	duration := s.opts.Clock().Sub(start)
	success := err == nil && (result == nil || !result.IsError)
	s.recorder.RecordToolExecution(name, duration, success)

	if result == nil && err == nil {
		result = &mcp.CallToolResult{}
	}

	res := &domain.InvocationResult{
		RequestID: requestID,
		Handler:   name,
		Success:   success,
		Result:    result,
		Duration:  duration,
	}

	if !success {
		res.Failure = failureFor(err, result)
		s.logger.Warn("Handler failed", "name", name, "request_id", requestID, "code", res.Failure.Code, "error", res.Failure.Message)
		s.bus.publish(HandlerError{
			EventMeta: s.meta(),
			Name:      name,
			RequestID: requestID,
			Message:   res.Failure.Message,
		})
	}

	s.bus.publish(HandlerInvoked{
		EventMeta: s.meta(),
		Name:      name,
		RequestID: requestID,
		Duration:  duration,
		Success:   success,
	})

	return res, nil
}

// Info describes the runtime instance.
func (s *Server) Info() domain.ServerInfo {
	s.mu.RLock()
	state := s.state
	startedAt := s.startedAt
	names := make([]string, 0, len(s.transports))
	for _, t := range s.transports {
		names = append(names, t.Name())
	}
	s.mu.RUnlock()

	info := domain.ServerInfo{
		ID:          s.opts.ServerID,
		Name:        s.cfg.Server.Name,
		Version:     s.cfg.Server.Version,
		Description: s.cfg.Server.Description,
		State:       string(state),
		Transports:  names,
	}
	if !startedAt.IsZero() {
		info.StartedAt = &startedAt
	}

	return info
}

func (s *Server) meta() EventMeta {
	return EventMeta{
		Timestamp: s.opts.Clock(),
		ServerID:  s.opts.ServerID,
	}
}

func failureFor(err error, result *mcp.CallToolResult) *domain.Failure {
	switch {
	case err == nil:
		return &domain.Failure{Code: domain.FailureHandlerExecution, Message: resultText(result)}
	case stdErrors.Is(err, errors.ErrCircuitOpen):
		return &domain.Failure{Code: domain.FailureCircuitOpen, Message: err.Error()}
	case stdErrors.Is(err, errors.ErrValidation):
		return &domain.Failure{Code: domain.FailureInvalidParams, Message: err.Error()}
	case stdErrors.Is(err, context.DeadlineExceeded), stdErrors.Is(err, errors.ErrTimeout):
		return &domain.Failure{Code: domain.FailureTimeout, Message: err.Error()}
	default:
		return &domain.Failure{Code: domain.FailureHandlerExecution, Message: err.Error()}
	}
}

// resultText joins the text content of a tool result.
func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}

	if len(parts) == 0 {
		return "handler reported an error"
	}
	return strings.Join(parts, "\n")
}
