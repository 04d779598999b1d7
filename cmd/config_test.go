package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	cmdopts "github.com/mozilla-ai/mcprt/internal/cmd/options"
	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/flags"
)

func TestNewConfigCmd_SubCommands(t *testing.T) {
	t.Parallel()

	c, err := NewConfigCmd(testBaseCmd(t))
	require.NoError(t, err)

	var names []string
	for _, sub := range c.Commands() {
		names = append(names, sub.Name())
	}
	require.ElementsMatch(t, []string{"init", "validate", "show"}, names)
}

func TestConfigValidateCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		loader     config.Loader
		args       []string
		wantErr    string
		wantStdout string
		wantStderr string
	}{
		{
			name:       "valid",
			loader:     &mockConfigLoader{cfg: config.Default()},
			wantStdout: "✓ Configuration is valid",
		},
		{
			name:       "load failure",
			loader:     &mockConfigLoader{err: errors.New("broken file")},
			wantErr:    "broken file",
			wantStderr: "✗ Configuration validation failed: broken file",
		},
		{
			name:       "required transport enabled",
			loader:     &mockConfigLoader{cfg: config.Default()},
			args:       []string{"--require-transport", "stdio"},
			wantStdout: "✓ Configuration is valid",
		},
		{
			name:       "required transport missing",
			loader:     &mockConfigLoader{cfg: config.Default()},
			args:       []string{"--require-transport", "http"},
			wantErr:    "server.transports",
			wantStderr: "✗ Configuration validation failed",
		},
		{
			name:    "unknown required transport",
			loader:  &mockConfigLoader{cfg: config.Default()},
			args:    []string{"--require-transport", "smtp"},
			wantErr: "unknown transport 'smtp'",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewConfigValidateCmd(testBaseCmd(t), cmdopts.WithConfigLoader(tc.loader))
			require.NoError(t, err)

			var stdout, stderr bytes.Buffer
			c.SetOut(&stdout)
			c.SetErr(&stderr)
			c.SetArgs(append([]string{}, tc.args...))

			err = c.Execute()
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Contains(t, stdout.String(), tc.wantStdout)
			require.Contains(t, stderr.String(), tc.wantStderr)
		})
	}
}

func TestConfigShowCmd(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"secret-key-1", "secret-key-2"}
	cfg.Auth.JWTSecret = "jwt-secret"
	cfg.Auth.BasicUsers = map[string]string{"alice": "$2a$10$hash"}

	tests := []struct {
		name      string
		args      []string
		contains  []string
		excludes  []string
		wantError string
	}{
		{
			name:     "toml redacted by default",
			contains: []string{"[server]", redacted},
			excludes: []string{"secret-key-1", "jwt-secret", "$2a$10$hash"},
		},
		{
			name:     "json",
			args:     []string{"--format", "json"},
			contains: []string{`"server"`, `"apiKeys"`, redacted},
			excludes: []string{"secret-key-2"},
		},
		{
			name:     "yaml with secrets",
			args:     []string{"--format", "yaml", "--show-secrets"},
			contains: []string{"server:", "secret-key-1", "jwt-secret"},
		},
		{
			name:      "invalid format",
			args:      []string{"--format", "xml"},
			wantError: "invalid format 'xml'",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewConfigShowCmd(testBaseCmd(t), cmdopts.WithConfigLoader(&mockConfigLoader{cfg: cfg}))
			require.NoError(t, err)

			var stdout bytes.Buffer
			c.SetOut(&stdout)
			c.SetErr(&bytes.Buffer{})
			c.SetArgs(append([]string{}, tc.args...))

			err = c.Execute()
			if tc.wantError != "" {
				require.ErrorContains(t, err, tc.wantError)
				return
			}
			require.NoError(t, err)

			for _, s := range tc.contains {
				require.Contains(t, stdout.String(), s)
			}
			for _, s := range tc.excludes {
				require.NotContains(t, stdout.String(), s)
			}
		})
	}

	// The loaded configuration is never modified.
	require.Equal(t, []string{"secret-key-1", "secret-key-2"}, cfg.Auth.APIKeys)
	require.Equal(t, "$2a$10$hash", cfg.Auth.BasicUsers["alice"])
}

func TestRedact_NoCredentials(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	out := redact(cfg)

	require.NotSame(t, cfg, out)
	require.Empty(t, out.Auth.APIKeys)
	require.Empty(t, out.Auth.JWTSecret)
	require.Empty(t, out.Auth.BasicUsers)
}

// Tests below mutate package level flag values and cannot run in parallel.

func TestConfigInitCmd(t *testing.T) {
	t.Cleanup(func() { flags.ConfigFile = "" })

	initializer := &mockConfigInitializer{}
	c, err := NewConfigInitCmd(testBaseCmd(t), cmdopts.WithConfigInitializer(initializer))
	require.NoError(t, err)

	flags.ConfigFile = " runtime.yaml "
	var stdout bytes.Buffer
	c.SetOut(&stdout)
	c.SetArgs([]string{})

	require.NoError(t, c.Execute())
	require.Equal(t, "runtime.yaml", initializer.path)
	require.Contains(t, stdout.String(), "✓ Created configuration file: runtime.yaml")

	initializer.err = errors.New("already exists")
	c.SetErr(&bytes.Buffer{})
	require.EqualError(t, c.Execute(), "failed to create configuration file: already exists")
}

func TestConfigInitCmd_DefaultLoader(t *testing.T) {
	t.Cleanup(func() { flags.ConfigFile = "" })

	path := filepath.Join(t.TempDir(), "runtime.toml")
	flags.ConfigFile = path

	initCmd, err := NewConfigInitCmd(testBaseCmd(t))
	require.NoError(t, err)
	initCmd.SetOut(&bytes.Buffer{})
	initCmd.SetArgs([]string{})
	require.NoError(t, initCmd.Execute())

	_, err = os.Stat(path)
	require.NoError(t, err)

	validateCmd, err := NewConfigValidateCmd(testBaseCmd(t))
	require.NoError(t, err)
	var stdout bytes.Buffer
	validateCmd.SetOut(&stdout)
	validateCmd.SetArgs([]string{})
	require.NoError(t, validateCmd.Execute())
	require.Contains(t, stdout.String(), "✓ Configuration is valid")
}
