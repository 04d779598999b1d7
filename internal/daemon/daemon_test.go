package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/mcprt/internal/builtin"
	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/core"
)

type daemonHarness struct {
	daemon *Daemon
	stdin  *io.PipeWriter
	stdout *bufio.Reader
}

func testConfig(transports ...string) *config.Config {
	cfg := config.Default()
	cfg.Server.Transports = transports
	cfg.HTTP.Addr = "127.0.0.1:0"
	return cfg
}

func newDaemonHarness(t *testing.T, cfg *config.Config, opt ...Option) daemonHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outR.Close()
	})

	deps, err := NewDependencies(hclog.NewNullLogger(), cfg, inR, outW)
	require.NoError(t, err)

	d, err := NewDaemon(deps, append([]Option{WithServerID("daemon-test")}, opt...)...)
	require.NoError(t, err)
	t.Cleanup(d.collector.Shutdown)

	return daemonHarness{daemon: d, stdin: inW, stdout: bufio.NewReader(outR)}
}

// run starts the daemon and returns a channel that receives Run's result.
func (h daemonHarness) run(t *testing.T, ctx context.Context) <-chan error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- h.daemon.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.daemon.Server().State() == core.StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
		return nil
	}
}

func TestNewDaemon_InvalidDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewDaemon(Dependencies{Logger: hclog.NewNullLogger()})
	require.EqualError(t, err, "invalid daemon dependencies: config cannot be nil")
}

func TestNewDaemon_InvalidOptions(t *testing.T) {
	t.Parallel()

	deps, err := NewDependencies(hclog.NewNullLogger(), testConfig(config.TransportHTTP), nil, nil)
	require.NoError(t, err)

	_, err = NewDaemon(deps, WithMaxRestarts(-1))
	require.ErrorContains(t, err, "invalid daemon options")
}

func TestNewDaemon_Handlers(t *testing.T) {
	t.Parallel()

	echo := core.Registration{
		Name: "echo",
		Handler: func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		},
	}

	t.Run("builtin and application handlers", func(t *testing.T) {
		t.Parallel()

		h := newDaemonHarness(t, testConfig(config.TransportStdio), WithHandlers(echo))

		names := []string{}
		for _, d := range h.daemon.Server().Handlers() {
			names = append(names, d.Name)
		}
		require.Equal(t, []string{"echo", builtin.HealthHandlerName, builtin.MetricsHandlerName}, names)
	})

	t.Run("builtin handlers disabled", func(t *testing.T) {
		t.Parallel()

		h := newDaemonHarness(t, testConfig(config.TransportStdio), WithBuiltinHandlers(false))
		require.Empty(t, h.daemon.Server().Handlers())
	})

	t.Run("duplicate handler", func(t *testing.T) {
		t.Parallel()

		deps, err := NewDependencies(hclog.NewNullLogger(), testConfig(config.TransportHTTP), nil, nil)
		require.NoError(t, err)

		_, err = NewDaemon(deps, WithHandlers(echo, echo))
		require.ErrorContains(t, err, "failed to register handler 'echo'")
	})
}

func TestNewDaemon_TransportSelection(t *testing.T) {
	t.Parallel()

	t.Run("stdio only", func(t *testing.T) {
		t.Parallel()

		h := newDaemonHarness(t, testConfig(config.TransportStdio))
		require.Nil(t, h.daemon.Sessions())
		require.Empty(t, h.daemon.APIAddr())
		require.Equal(t, []string{config.TransportStdio}, h.daemon.Server().Info().Transports)
	})

	t.Run("http only", func(t *testing.T) {
		t.Parallel()

		h := newDaemonHarness(t, testConfig(config.TransportHTTP))
		require.NotNil(t, h.daemon.Sessions())
		require.Equal(t, "127.0.0.1:0", h.daemon.APIAddr())
		require.Nil(t, h.daemon.limiter)
	})

	t.Run("rate limit enabled", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(config.TransportHTTP)
		cfg.RateLimit.Enabled = true
		h := newDaemonHarness(t, cfg)
		require.NotNil(t, h.daemon.limiter)
		require.Equal(t, config.DefaultRateRequests, h.daemon.limiter.Limit())
	})
}

func TestDaemon_Run_BothTransports(t *testing.T) {
	t.Parallel()

	h := newDaemonHarness(t, testConfig(config.TransportHTTP, config.TransportStdio))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := h.run(t, ctx)

	resp, err := http.Get("http://" + h.daemon.APIAddr() + "/mcp/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = io.WriteString(h.stdin, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"runtime_health"}}`+"\n")
	require.NoError(t, err)

	line, err := h.stdout.ReadBytes('\n')
	require.NoError(t, err)
	var reply map[string]any
	require.NoError(t, json.Unmarshal(line, &reply))
	require.Equal(t, float64(7), reply["id"])
	require.Contains(t, reply, "result")

	cancel()
	require.NoError(t, wait(t, done))
	require.Equal(t, core.StateStopped, h.daemon.Server().State())
}

func TestDaemon_Run_StdinClosed(t *testing.T) {
	t.Parallel()

	h := newDaemonHarness(t, testConfig(config.TransportStdio))
	done := h.run(t, context.Background())

	require.NoError(t, h.stdin.Close())

	require.NoError(t, wait(t, done))
	require.Equal(t, core.StateStopped, h.daemon.Server().State())
}

func TestDaemon_Run_FaultRestarts(t *testing.T) {
	t.Parallel()

	h := newDaemonHarness(t, testConfig(config.TransportStdio), WithMaxRestarts(1))

	var states []core.State
	events := make(chan core.State, 16)
	unsubscribe := h.daemon.Server().Subscribe(func(e core.Event) {
		if sc, ok := e.(core.StateChanged); ok {
			events <- sc.To
		}
	})
	defer unsubscribe()

	done := h.run(t, context.Background())

	// Every read fails once the pipe is broken, so the restarted transport faults again.
	require.NoError(t, h.stdin.CloseWithError(stdErrors.New("broken pipe")))

	err := wait(t, done)
	require.ErrorContains(t, err, "transport fault after 1 restart(s)")
	require.ErrorContains(t, err, "broken pipe")

	for len(events) > 0 {
		states = append(states, <-events)
	}
	require.Contains(t, states, core.StateError)
	require.Equal(t, core.StateStopped, h.daemon.Server().State())
}

func TestDaemon_Run_StartFailure(t *testing.T) {
	t.Parallel()

	h := newDaemonHarness(t, testConfig(config.TransportHTTP))

	// Invalidate the configuration after assembly; Start validates it again.
	h.daemon.cfg.Server.Version = "not-semver"

	err := h.daemon.Run(context.Background())
	require.ErrorContains(t, err, "failed to start server")
	require.Equal(t, core.StateError, h.daemon.Server().State())
}

func TestDaemon_Prune(t *testing.T) {
	t.Parallel()

	cfg := testConfig(config.TransportHTTP)
	cfg.RateLimit.Enabled = true
	h := newDaemonHarness(t, cfg)

	_, err := h.daemon.Sessions().Create("alice", nil)
	require.NoError(t, err)

	// Nothing has expired yet.
	h.daemon.prune()
	require.Equal(t, 1, h.daemon.Sessions().Len())
}
