package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/auth"
	"github.com/mozilla-ai/mcprt/internal/builtin"
	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/core"
	"github.com/mozilla-ai/mcprt/internal/jsonrpc"
	"github.com/mozilla-ai/mcprt/internal/metrics"
	"github.com/mozilla-ai/mcprt/internal/ratelimit"
)

// Daemon assembles the server core, its metrics collector and the configured transports,
// and owns their lifecycle for the duration of Run.
// NewDaemon should be used to create instances of Daemon.
type Daemon struct {
	logger    hclog.Logger
	cfg       *config.Config
	server    *core.Server
	collector *metrics.Collector
	sessions  *auth.SessionStore
	limiter   *ratelimit.Limiter
	apiServer *APIServer
	stdio     *StdioServer

	maintenanceInterval time.Duration
	maxRestarts         int
	stopTimeout         time.Duration

	// faults carries transport failures to Run.
	faults chan error
}

// NewDaemon creates a new Daemon with the provided dependencies and options.
func NewDaemon(deps Dependencies, opt ...Option) (*Daemon, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon dependencies: %w", err)
	}

	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon options: %w", err)
	}

	cfg := deps.Config
	d := &Daemon{
		logger:              deps.Logger.Named("daemon"),
		cfg:                 cfg,
		maintenanceInterval: opts.MaintenanceInterval,
		maxRestarts:         opts.MaxRestarts,
		stopTimeout:         opts.StopTimeout,
		faults:              make(chan error, 1),
	}

	d.collector, err = metrics.NewCollector(
		deps.Logger,
		metrics.WithServiceName(cfg.Server.Name),
		metrics.WithMaxValues(cfg.Metrics.MaxValues),
		metrics.WithRetention(time.Duration(cfg.Metrics.Retention)),
		metrics.WithCleanupInterval(time.Duration(cfg.Metrics.CleanupInterval)),
		metrics.WithSnapshotInterval(time.Duration(cfg.Metrics.SnapshotInterval)),
		metrics.WithMaxResponseTimes(cfg.Metrics.MaxResponseTimes),
		metrics.WithMaxSnapshots(cfg.Metrics.MaxSnapshots),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	if err := d.assemble(deps, opts); err != nil {
		d.collector.Shutdown()
		return nil, err
	}

	return d, nil
}

func (d *Daemon) assemble(deps Dependencies, opts Options) error {
	cfg := deps.Config

	coreDeps, err := core.NewDependencies(deps.Logger, cfg, d.collector)
	if err != nil {
		return fmt.Errorf("invalid server dependencies: %w", err)
	}

	var coreOpts []core.Option
	if opts.ServerID != "" {
		coreOpts = append(coreOpts, core.WithServerID(opts.ServerID))
	}

	d.server, err = core.NewServer(coreDeps, coreOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	d.server.Subscribe(d.logEvent)

	if opts.BuiltinHandlers {
		if err := builtin.Register(d.server, d.server, d.collector); err != nil {
			return err
		}
	}

	for _, reg := range opts.Handlers {
		if err := d.server.Register(reg); err != nil {
			return fmt.Errorf("failed to register handler '%s': %w", reg.Name, err)
		}
	}

	dispatcher, err := jsonrpc.NewDispatcher(
		deps.Logger,
		d.server,
		jsonrpc.WithTimeout(time.Duration(cfg.HTTP.RequestTimeout)),
		jsonrpc.WithInstructions(cfg.Server.Description),
	)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// Transports start in attach order.
	if cfg.Server.HasTransport(config.TransportHTTP) {
		if err := d.assembleHTTP(deps.Logger, dispatcher, opts.APIOptions); err != nil {
			return err
		}
	}

	if cfg.Server.HasTransport(config.TransportStdio) {
		d.stdio, err = NewStdioServer(deps.Logger, dispatcher, deps.Stdin, deps.Stdout, d.fault)
		if err != nil {
			return fmt.Errorf("failed to create stdio transport: %w", err)
		}
		if err := d.server.AttachTransport(d.stdio); err != nil {
			return err
		}
	}

	return nil
}

func (d *Daemon) assembleHTTP(logger hclog.Logger, dispatcher *jsonrpc.Dispatcher, apiOpts []APIOption) error {
	cfg := d.cfg

	var err error
	d.sessions, err = auth.NewSessionStore(
		auth.WithAccessTTL(time.Duration(cfg.Session.AccessTTL)),
		auth.WithRefreshTTL(time.Duration(cfg.Session.RefreshTTL)),
	)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth, d.sessions)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	if cfg.RateLimit.Enabled {
		d.limiter, err = ratelimit.NewLimiter(
			ratelimit.WithLimit(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.Window)),
		)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
	}

	apiDeps, err := NewAPIDependencies(logger, d.server, dispatcher, d.collector, authenticator, cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("invalid API server dependencies: %w", err)
	}
	apiDeps.Limiter = d.limiter
	apiDeps.Sessions = d.sessions

	// Configuration first, so explicit API options take precedence.
	opts := append([]APIOption{
		WithBasePath(cfg.HTTP.BasePath),
		WithShutdownTimeout(time.Duration(cfg.HTTP.ShutdownTimeout)),
		WithCORSConfig(cfg.HTTP.CORS),
		WithFaultHandler(d.fault),
	}, apiOpts...)

	d.apiServer, err = NewAPIServer(apiDeps, opts...)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	return d.server.AttachTransport(d.apiServer)
}

// Server returns the assembled server core.
func (d *Daemon) Server() *core.Server {
	return d.server
}

// Sessions returns the session store backing bearer authentication, or nil without the HTTP transport.
func (d *Daemon) Sessions() *auth.SessionStore {
	return d.sessions
}

// APIAddr returns the HTTP transport's address, or "" without the HTTP transport.
func (d *Daemon) APIAddr() string {
	if d.apiServer == nil {
		return ""
	}
	return d.apiServer.Addr()
}

// Run starts the server and blocks until ctx is cancelled or standard input is exhausted,
// then stops the server.
// A transport fault moves the server to the error state and triggers a restart,
// up to the configured maximum. Once restarts are exhausted Run stops the server and returns the fault.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.collector.Shutdown()

	if err := d.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	maintenanceCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.maintenanceLoop(maintenanceCtx)

	var stdinClosed <-chan struct{}
	if d.stdio != nil {
		stdinClosed = d.stdio.Done()
	}

	restarts := 0
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutdown requested")
			return d.stop(ctx)
		case <-stdinClosed:
			d.logger.Info("Standard input closed, shutting down")
			return d.stop(ctx)
		case fault := <-d.faults:
			if restarts >= d.maxRestarts {
				d.logger.Error("Transport fault, restarts exhausted", "restarts", restarts, "error", fault)
				if err := d.stop(ctx); err != nil {
					d.logger.Error("Failed to stop server", "error", err)
				}
				return fmt.Errorf("transport fault after %d restart(s): %w", restarts, fault)
			}

			restarts++
			d.logger.Warn("Transport fault, restarting", "attempt", restarts, "max", d.maxRestarts, "error", fault)
			if err := d.server.Restart(ctx); err != nil {
				if stopErr := d.stop(ctx); stopErr != nil {
					d.logger.Error("Failed to stop server", "error", stopErr)
				}
				return fmt.Errorf("restart failed: %w", err)
			}
		}
	}
}

// stop stops the server if it is running or failed, bounded by the stop timeout.
// The parent context may already be cancelled, so only its values are kept.
func (d *Daemon) stop(ctx context.Context) error {
	switch d.server.State() {
	case core.StateRunning, core.StateError:
	default:
		return nil
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.stopTimeout)
	defer cancel()

	if err := d.server.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	return nil
}

// fault is called by transports when they fail after startup.
func (d *Daemon) fault(err error) {
	d.server.Fail(err)

	select {
	case d.faults <- err:
	default:
		// A restart is already pending.
	}
}

func (d *Daemon) maintenanceLoop(ctx context.Context) {
	if d.sessions == nil && d.limiter == nil {
		return
	}

	ticker := time.NewTicker(d.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.prune()
		}
	}
}

func (d *Daemon) prune() {
	var sessions, windows int
	if d.sessions != nil {
		sessions = d.sessions.Prune()
	}
	if d.limiter != nil {
		windows = d.limiter.Prune()
	}

	if sessions > 0 || windows > 0 {
		d.logger.Debug("Pruned expired state", "sessions", sessions, "rateLimitWindows", windows)
	}
}

func (d *Daemon) logEvent(e core.Event) {
	switch ev := e.(type) {
	case core.StateChanged:
		d.logger.Debug("State changed", "from", ev.From, "to", ev.To)
	case core.HandlerInvoked:
		d.logger.Trace("Handler invoked", "name", ev.Name, "requestID", ev.RequestID, "duration", ev.Duration, "success", ev.Success)
	case core.ServerError:
		d.logger.Error("Server error", "error", ev.Err)
	}
}
