package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/flags"
	"github.com/mozilla-ai/mcprt/internal/perms"
)

func resetFlags(t *testing.T) {
	t.Helper()

	t.Cleanup(func() {
		flags.LogPath = ""
		flags.LogLevel = ""
	})
}

func TestBaseCmd_Logger_SetLogger(t *testing.T) {
	t.Parallel()

	logger := hclog.NewNullLogger()
	c := &BaseCmd{}
	c.SetLogger(logger)

	got, err := c.Logger()
	require.NoError(t, err)
	require.Same(t, logger, got)
}

// Tests below mutate package level flag values and cannot run in parallel.

func TestBaseCmd_Logger_ErrOut(t *testing.T) {
	resetFlags(t)
	flags.LogLevel = "debug"

	var buf bytes.Buffer
	c := &BaseCmd{}
	c.SetErrOut(&buf)

	logger, err := c.Logger()
	require.NoError(t, err)
	require.True(t, logger.IsDebug())

	logger.Info("hello", "key", "value")
	require.Contains(t, buf.String(), "hello")
	require.Contains(t, buf.String(), LoggerName)

	// The logger is built once.
	again, err := c.Logger()
	require.NoError(t, err)
	require.Same(t, logger, again)
}

func TestBaseCmd_Logger_File(t *testing.T) {
	resetFlags(t)
	flags.LogPath = filepath.Join(t.TempDir(), "mcprt.log")

	var buf bytes.Buffer
	c := &BaseCmd{}
	c.SetErrOut(&buf)

	logger, err := c.Logger()
	require.NoError(t, err)
	logger.Info("written to file")

	data, err := os.ReadFile(flags.LogPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "written to file")
	require.Empty(t, buf.String())
}

func TestBaseCmd_Logger_Errors(t *testing.T) {
	t.Run("invalid level", func(t *testing.T) {
		resetFlags(t)
		flags.LogLevel = "chatty"

		_, err := (&BaseCmd{}).Logger()
		require.EqualError(t, err, "invalid log level 'chatty'")
	})

	t.Run("unwritable log file", func(t *testing.T) {
		resetFlags(t)
		flags.LogPath = filepath.Join(t.TempDir(), "missing", "mcprt.log")

		_, err := (&BaseCmd{}).Logger()
		require.ErrorContains(t, err, "failed to open log file")
	})
}

type recordingLoader struct {
	path string
	err  error
}

func (l *recordingLoader) Load(path string) (*config.Config, error) {
	l.path = path
	if l.err != nil {
		return nil, l.err
	}
	return config.Default(), nil
}

func TestBaseCmd_LoadConfig(t *testing.T) {
	t.Cleanup(func() { flags.ConfigFile = "" })

	c := &BaseCmd{}

	_, err := c.LoadConfig(nil)
	require.EqualError(t, err, "config loader cannot be nil")

	flags.ConfigFile = " custom.yaml "
	loader := &recordingLoader{}
	cfg, err := c.LoadConfig(loader)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "custom.yaml", loader.path)

	flags.ConfigFile = ""
	_, err = c.LoadConfig(loader)
	require.NoError(t, err)
	require.Equal(t, flags.DefaultConfigFile, loader.path)

	failing := &recordingLoader{err: errors.New("boom")}
	_, err = c.LoadConfig(failing)
	require.EqualError(t, err, "boom")
}

func TestCredentialWarning(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions are not supported on Windows")
	}

	require.Empty(t, CredentialWarning(nil))

	// Not loaded from a file.
	cfg := config.Default()
	cfg.Auth.APIKeys = []string{"key"}
	require.Empty(t, CredentialWarning(cfg))

	write := func(t *testing.T, c *config.Config, mode os.FileMode) string {
		t.Helper()

		data, err := c.Marshal(config.FormatTOML)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "runtime.toml")
		require.NoError(t, os.WriteFile(path, data, mode))
		require.NoError(t, os.Chmod(path, mode))
		return path
	}

	loader := &config.DefaultLoader{}

	loaded, err := loader.Load(write(t, cfg, perms.RegularFile))
	require.NoError(t, err)
	warning := CredentialWarning(loaded)
	require.Contains(t, warning, "contains credentials but has mode 0644")
	require.Contains(t, warning, "0600")

	loaded, err = loader.Load(write(t, cfg, perms.SecureFile))
	require.NoError(t, err)
	require.Empty(t, CredentialWarning(loaded))

	// No credentials, nothing to report.
	loaded, err = loader.Load(write(t, config.Default(), perms.RegularFile))
	require.NoError(t, err)
	require.Empty(t, CredentialWarning(loaded))
}
