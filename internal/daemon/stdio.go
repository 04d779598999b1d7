package daemon

import (
	"bufio"
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/errors"
)

var _ contracts.Transport = (*StdioServer)(nil)

// StdioServer is the line-delimited JSON-RPC transport over a reader and writer pair,
// normally stdin and stdout. Each input line is one message or batch; each reply is one output line.
// NewStdioServer should be used to create instances of StdioServer.
type StdioServer struct {
	logger     hclog.Logger
	dispatcher contracts.Dispatcher
	in         io.Reader
	out        io.Writer
	onFault    func(error)

	mu       sync.Mutex
	attached bool
	reading  bool
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	// writeMu keeps replies from interleaving.
	writeMu sync.Mutex

	// eof is closed once the input is exhausted.
	eof     chan struct{}
	eofOnce sync.Once
}

// NewStdioServer creates a StdioServer reading from in and writing replies to out.
// onFault, which may be nil, is called when reading fails while attached.
func NewStdioServer(
	logger hclog.Logger,
	dispatcher contracts.Dispatcher,
	in io.Reader,
	out io.Writer,
	onFault func(error),
) (*StdioServer, error) {
	if logger == nil || reflect.ValueOf(logger).IsNil() {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if dispatcher == nil || reflect.ValueOf(dispatcher).IsNil() {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if in == nil {
		return nil, fmt.Errorf("input cannot be nil")
	}
	if out == nil {
		return nil, fmt.Errorf("output cannot be nil")
	}
	if onFault == nil {
		onFault = func(error) {}
	}

	return &StdioServer{
		logger:     logger.Named("stdio"),
		dispatcher: dispatcher,
		in:         in,
		out:        out,
		onFault:    onFault,
		eof:        make(chan struct{}),
	}, nil
}

// Name identifies the transport.
func (s *StdioServer) Name() string {
	return config.TransportStdio
}

// Done is closed once the input reaches end of file.
func (s *StdioServer) Done() <-chan struct{} {
	return s.eof
}

// Start attaches the server to its input.
// The input is read by a single goroutine for the lifetime of the server,
// so a restarted server re-attaches to the same reader.
func (s *StdioServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return fmt.Errorf("%w: stdio transport already started", errors.ErrInvalidState)
	}

	// Handlers keep running after the caller's context ends; Close cancels them.
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.attached = true

	if !s.reading {
		s.reading = true
		go s.readLoop()
	}

	s.logger.Info("Listening on standard input")
	return nil
}

// Close detaches the server from its input and waits for in-flight messages to be answered.
// Lines read while detached are dropped. Closing a detached server is a no-op.
func (s *StdioServer) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return nil
	}
	s.attached = false
	cancel := s.cancel
	s.mu.Unlock()

	defer cancel()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Detached from standard input")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stdio transport close: %w", ctx.Err())
	}
}

func (s *StdioServer) readLoop() {
	// bufio.Reader instead of bufio.Scanner avoids a maximum line length.
	reader := bufio.NewReader(s.in)

	for {
		line, err := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			s.accept(line)
		}

		if err == nil {
			continue
		}

		s.mu.Lock()
		s.reading = false
		attached := s.attached
		s.mu.Unlock()

		if stdErrors.Is(err, io.EOF) {
			s.logger.Info("Standard input closed")
			s.eofOnce.Do(func() { close(s.eof) })
			return
		}

		s.logger.Error("Failed to read standard input", "error", err)
		if attached {
			s.onFault(fmt.Errorf("stdio read failed: %w", err))
		}
		return
	}
}

// accept hands a line to a handler goroutine when attached.
func (s *StdioServer) accept(line []byte) {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		s.logger.Debug("Dropping input received while detached", "bytes", len(line))
		return
	}
	ctx := s.ctx
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		s.handle(ctx, line)
	}()
}

func (s *StdioServer) handle(ctx context.Context, line []byte) {
	reply, err := s.dispatcher.HandleMessage(ctx, line)
	if err != nil {
		s.logger.Error("Failed to handle message", "error", err)
		return
	}
	if reply == nil {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.out.Write(append(reply, '\n')); err != nil {
		s.logger.Error("Failed to write reply", "error", err)
	}
}
