package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/api"
	"github.com/mozilla-ai/mcprt/internal/auth"
	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/contracts"
	"github.com/mozilla-ai/mcprt/internal/errors"
	"github.com/mozilla-ai/mcprt/internal/ratelimit"
)

var _ contracts.Transport = (*APIServer)(nil)

// huma's error constructor is package global, so the first server to build a handler installs it.
var installErrorHandler sync.Once

// APIServer is the HTTP transport.
// NewAPIServer should be used to create instances of APIServer.
type APIServer struct {
	// Logger for API server operations.
	logger hclog.Logger

	runtime       contracts.Runtime
	dispatcher    contracts.Dispatcher
	exporter      contracts.MetricsExporter
	authenticator *auth.Authenticator
	limiter       *ratelimit.Limiter
	sessions      *auth.SessionStore

	// Addr specifies the network address to bind.
	addr string

	// BasePath is the prefix all routes are served under.
	basePath string

	// CORS configuration for cross-origin requests.
	cors CORSConfig

	// ShutdownTimeout specifies how long to wait for graceful shutdown.
	shutdownTimeout time.Duration

	onFault func(error)

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewAPIServer creates a new API server with the provided dependencies and options.
// Applies default options first, then user-provided options to ensure all fields have valid values.
func NewAPIServer(deps APIDependencies, opt ...APIOption) (*APIServer, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies for API server: %w", err)
	}

	// Ensure we always start with defaults and apply user options on top.
	apiOpts, err := NewAPIOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("invalid API options: %w", err)
	}

	return &APIServer{
		logger:          deps.Logger.Named("api"),
		runtime:         deps.Runtime,
		dispatcher:      deps.Dispatcher,
		exporter:        deps.Exporter,
		authenticator:   deps.Authenticator,
		limiter:         deps.Limiter,
		sessions:        deps.Sessions,
		addr:            deps.Addr,
		basePath:        apiOpts.BasePath,
		cors:            apiOpts.CORS,
		shutdownTimeout: apiOpts.ShutdownTimeout,
		onFault:         apiOpts.OnFault,
	}, nil
}

// Name identifies the transport.
func (a *APIServer) Name() string {
	return config.TransportHTTP
}

// Addr returns the bound listener address while serving, otherwise the configured address.
func (a *APIServer) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.addr
}

// Handler builds the router with middleware and all API routes.
// Requests pass through request context construction, authentication and rate limiting, in that order.
func (a *APIServer) Handler() (http.Handler, error) {
	// Create router.
	mux := chi.NewMux()
	mux.Use(middleware.StripSlashes)

	// Add CORS middleware if enabled.
	if a.cors.Enabled {
		a.applyCORS(mux)
	}

	mux.Use(requestContext(a.logger))
	mux.Use(a.authenticate)
	mux.Use(a.rateLimit)

	info := a.runtime.Info()
	cfg := huma.DefaultConfig(info.Name+" API", info.Version)
	cfg.Transformers = append(cfg.Transformers, api.Transformers()...)
	router := humachi.New(mux, cfg)

	// Configure the error handling wrapping.
	installErrorHandler.Do(func() {
		huma.NewErrorWithContext = errorHandler(a.logger)
	})

	if _, err := api.RegisterRoutes(router, api.RouteDependencies{
		Runtime:    a.runtime,
		Dispatcher: a.dispatcher,
		Exporter:   a.exporter,
		Sessions:   a.sessions,
	}, a.basePath); err != nil {
		return nil, err
	}

	return mux, nil
}

// Start binds the listener and serves in the background.
// It returns once the listener is accepting connections.
func (a *APIServer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.srv != nil {
		return fmt.Errorf("%w: API server already started", errors.ErrInvalidState)
	}

	handler, err := a.Handler()
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})

	// Start the API.
	go func() {
		defer close(done)
		a.logger.Info("Starting API server", "address", ln.Addr().String(), "prefix", a.basePath)
		if a.cors.Enabled {
			a.logger.Info("CORS enabled", "origins", a.cors.AllowOrigins)
		}
		if err := srv.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			a.logger.Error("API server stopped unexpectedly", "error", err)
			a.onFault(err)
		}
	}()

	a.srv = srv
	a.listener = ln
	a.done = done

	return nil
}

// Close stops accepting connections, closes the listener and waits for in-flight requests.
// Requests still running after the shutdown timeout are cut off and an error is returned.
// Closing a server that is not serving is a no-op.
func (a *APIServer) Close(ctx context.Context) error {
	a.mu.Lock()
	srv, done := a.srv, a.done
	a.srv, a.listener, a.done = nil, nil, nil
	a.mu.Unlock()

	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.shutdownTimeout)
	defer cancel()

	a.logger.Info("Shutting down API server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		<-done
		return fmt.Errorf("API server shutdown: %w", err)
	}
	<-done
	a.logger.Info("Shutdown complete")

	return nil
}

// applyCORS applies CORS middleware to the router based on the configured options.
func (a *APIServer) applyCORS(mux *chi.Mux) {
	a.logger.Info("Enabling CORS", "origins", a.cors.AllowOrigins)

	corsOptions := cors.Options{
		AllowedOrigins:   a.cors.AllowOrigins,
		AllowedMethods:   a.cors.AllowMethods,
		AllowedHeaders:   a.cors.AllowedHeaders,
		ExposedHeaders:   a.cors.ExposedHeaders,
		AllowCredentials: a.cors.AllowCredentials,
		MaxAge:           int(a.cors.MaxAge.Seconds()),
	}

	// Handle wildcard origins properly.
	for i, origin := range corsOptions.AllowedOrigins {
		if origin == "*" {
			corsOptions.AllowedOrigins = []string{"*"}
			corsOptions.AllowCredentials = false
			break
		}
		corsOptions.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	mux.Use(cors.Handler(corsOptions))
}

// relativePath strips the base path from an inbound request path.
func (a *APIServer) relativePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if a.basePath == "" {
		return path
	}
	if path == a.basePath {
		return "/"
	}
	if rel, ok := strings.CutPrefix(path, a.basePath+"/"); ok {
		return "/" + rel
	}
	return path
}

// mapError maps application domain errors to appropriate HTTP status codes.
//
// This function is the central place where domain errors from internal/errors are converted to HTTP responses.
// When adding new errors to internal/errors/errors.go, you MUST add them here to prevent them from falling
// through to the default case which returns HTTP 500.
//
// NOTE: Keep this function in sync with internal/errors/errors.go.
// Every error defined there should have an explicit case here otherwise it will default to 500.
//
// Mapping guidelines:
//   - 400/422: Client errors (undecodable requests, invalid input)
//   - 401/403: Authentication and authorization errors
//   - 404: Unknown handler or session
//   - 409: Lifecycle operations invalid in the current state
//   - 429: Rate limit exceeded
//   - 502/503/504: Handler failures, open circuits and timeouts
//   - 500: Configuration and unexpected internal errors (default case)
//
// Don't forget to:
// 1. Add test cases to TestMapError (internal/daemon/api_server_test.go)
// 2. Update the documentation in internal/errors/errors.go
func mapError(logger hclog.Logger, err error) huma.StatusError {
	switch {
	case stdErrors.Is(err, errors.ErrBadRequest):
		return huma.Error400BadRequest(err.Error())
	case stdErrors.Is(err, errors.ErrValidation):
		return huma.Error422UnprocessableEntity(err.Error())
	case stdErrors.Is(err, errors.ErrAuthentication):
		return huma.Error401Unauthorized(err.Error())
	case stdErrors.Is(err, errors.ErrAuthorization):
		return huma.Error403Forbidden(err.Error())
	case stdErrors.Is(err, errors.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case stdErrors.Is(err, errors.ErrInvalidState):
		return huma.Error409Conflict(err.Error())
	case stdErrors.Is(err, errors.ErrRateLimited):
		return huma.Error429TooManyRequests(err.Error())
	case stdErrors.Is(err, errors.ErrHandlerExecution):
		logger.Error("Handler execution failed", "error", err)
		return huma.Error502BadGateway("Handler execution failed", err)
	case stdErrors.Is(err, errors.ErrCircuitOpen):
		return huma.Error503ServiceUnavailable(err.Error())
	case stdErrors.Is(err, errors.ErrTimeout):
		logger.Warn("Handler timed out", "error", err)
		return huma.Error504GatewayTimeout(err.Error())
	case stdErrors.Is(err, errors.ErrConfiguration):
		logger.Error("Configuration error", "error", err)
		return huma.Error500InternalServerError("Server misconfigured", err)
	default:
		logger.Error("Unexpected error handling request", "error", err)
		return huma.Error500InternalServerError("Internal server error", err)
	}
}

// errorHandler wraps error handling for the application when converting to API friendly errors.
// It allows the logger to be supplied to functions that resolve huma.StatusError,
// and it supports different behaviors based on the variadic errors parameter.
func errorHandler(logger hclog.Logger) func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
	return func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		// Request validation failures keep huma's status and field details.
		if len(errs) > 0 && allErrorDetails(errs) {
			return huma.NewError(status, msg, errs...)
		}

		switch len(errs) {
		case 0:
			// No errors provided; return a generic error.
			return huma.NewError(status, msg)
		case 1:
			// Single error; map it directly.
			return mapError(logger, errs[0])
		default:
			// Multiple errors; join them and map.
			combinedErr := stdErrors.Join(errs...)
			return mapError(logger, combinedErr)
		}
	}
}

func allErrorDetails(errs []error) bool {
	for _, err := range errs {
		if _, ok := err.(huma.ErrorDetailer); !ok {
			return false
		}
	}
	return true
}
