package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/mcprt/internal/cmd"
	cmdopts "github.com/mozilla-ai/mcprt/internal/cmd/options"
	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/daemon"
)

const (
	flagAddr        = "addr"
	flagTransport   = "transport"
	flagServerID    = "server-id"
	flagMaxRestarts = "max-restarts"
	flagNoBuiltins  = "no-builtin-handlers"
)

// ServeCmd should be used to represent the 'serve' command.
type ServeCmd struct {
	*cmd.BaseCmd
	Addr        string
	Transports  []string
	ServerID    string
	MaxRestarts int
	NoBuiltins  bool

	cfgLoader  config.Loader
	daemonOpts []daemon.Option
	stdin      io.Reader
	stdout     io.Writer
}

// NewServeCmd creates a newly configured (Cobra) command.
func NewServeCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &ServeCmd{
		BaseCmd:    baseCmd,
		cfgLoader:  opts.ConfigLoader,
		daemonOpts: opts.DaemonOptions,
		stdin:      opts.Stdin,
		stdout:     opts.Stdout,
	}

	cobraCommand := &cobra.Command{
		Use:   "serve [--addr] [--transport]",
		Short: "Runs the MCP server runtime",
		Long: "Runs the MCP server runtime using the configuration file, serving handlers over the " +
			"configured transports until interrupted or standard input is closed",
		RunE: c.run,
		Args: cobra.NoArgs,
	}

	cobraCommand.Flags().StringVar(
		&c.Addr,
		flagAddr,
		"",
		"Address for the HTTP transport to bind, overrides the configuration file",
	)

	cobraCommand.Flags().StringSliceVar(
		&c.Transports,
		flagTransport,
		nil,
		fmt.Sprintf("Transports to enable (%s, %s), overrides the configuration file", config.TransportStdio, config.TransportHTTP),
	)

	cobraCommand.Flags().StringVar(
		&c.ServerID,
		flagServerID,
		"",
		"Identifier reported by the server, generated when empty",
	)

	cobraCommand.Flags().IntVar(
		&c.MaxRestarts,
		flagMaxRestarts,
		daemon.DefaultMaxRestarts(),
		"Number of automatic restarts allowed after transport faults",
	)

	cobraCommand.Flags().BoolVar(
		&c.NoBuiltins,
		flagNoBuiltins,
		false,
		"Do not register the built-in runtime handlers",
	)

	return cobraCommand, nil
}

// run is configured (via NewServeCmd) to be called by the Cobra framework when the command is executed.
func (c *ServeCmd) run(cobraCmd *cobra.Command, _ []string) error {
	logger, err := c.Logger()
	if err != nil {
		return err
	}

	cfg, err := c.LoadConfig(c.cfgLoader)
	if err != nil {
		return err
	}

	if err := c.applyOverrides(cobraCmd, cfg); err != nil {
		return err
	}

	if warning := cmd.CredentialWarning(cfg); warning != "" {
		logger.Warn(warning)
	}

	deps, err := daemon.NewDependencies(logger, cfg, c.stdin, c.stdout)
	if err != nil {
		return fmt.Errorf("error configuring mcprt dependencies: %w", err)
	}

	opts := []daemon.Option{
		daemon.WithMaxRestarts(c.MaxRestarts),
		daemon.WithBuiltinHandlers(!c.NoBuiltins),
	}
	if c.ServerID != "" {
		opts = append(opts, daemon.WithServerID(c.ServerID))
	}
	opts = append(opts, c.daemonOpts...)

	d, err := daemon.NewDaemon(deps, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mcprt daemon instance: %w", err)
	}

	// Create the signal handling context for the application.
	ctx, cancel := signal.NotifyContext(
		cobraCmd.Context(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	logger.Info(
		"Serving",
		"name", cfg.Server.Name,
		"version", cfg.Server.Version,
		"transports", strings.Join(cfg.Server.Transports, ","),
		"config", cfg.Path(),
	)

	if err := d.Run(ctx); err != nil {
		logger.Error("Server exited with error", "error", err)
		return err
	}

	logger.Info("Server stopped")
	return nil
}

// applyOverrides replaces configuration values with explicitly set flags and revalidates.
func (c *ServeCmd) applyOverrides(cobraCmd *cobra.Command, cfg *config.Config) error {
	fs := cobraCmd.Flags()

	if fs.Changed(flagAddr) {
		cfg.HTTP.Addr = strings.TrimSpace(c.Addr)
	}

	if fs.Changed(flagTransport) {
		transports := make([]string, 0, len(c.Transports))
		for _, t := range c.Transports {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				transports = append(transports, t)
			}
		}
		cfg.Server.Transports = transports
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}
