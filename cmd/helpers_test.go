package cmd

import (
	"context"
	"fmt"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/mcprt/internal/cmd"
	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/core"
)

// mockConfigLoader implements config.Loader for testing.
type mockConfigLoader struct {
	cfg *config.Config
	err error
}

func (m *mockConfigLoader) Load(_ string) (*config.Config, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.cfg, nil
}

// mockConfigInitializer implements config.Initializer for testing.
type mockConfigInitializer struct {
	path string
	err  error
}

func (m *mockConfigInitializer) Init(path string) error {
	m.path = path
	return m.err
}

func testBaseCmd(t *testing.T) *cmd.BaseCmd {
	t.Helper()

	c := &cmd.BaseCmd{}
	c.SetLogger(hclog.NewNullLogger())
	return c
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func echoRegistration() core.Registration {
	return core.Registration{
		Name:        "echo",
		Description: "Echoes the message",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"message": map[string]any{"type": "string"}},
			Required:   []string{"message"},
		},
		Handler: func(_ context.Context, params map[string]any) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(fmt.Sprint(params["message"])), nil
		},
	}
}
