package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/mcprt/internal/cmd"
	cmdopts "github.com/mozilla-ai/mcprt/internal/cmd/options"
	"github.com/mozilla-ai/mcprt/internal/config"
)

type ConfigValidateCmd struct {
	*cmd.BaseCmd
	RequireTransports []string
	cfgLoader         config.Loader
}

func NewConfigValidateCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &ConfigValidateCmd{
		BaseCmd:   baseCmd,
		cfgLoader: opts.ConfigLoader,
	}

	cobraCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validates the configuration file",
		Long:  "Validates every section of the configuration file, optionally requiring specific transports",
		RunE:  c.run,
		Args:  cobra.NoArgs,
	}

	cobraCmd.Flags().StringSliceVar(
		&c.RequireTransports,
		"require-transport",
		nil,
		fmt.Sprintf("Fail unless the transport is enabled (%s, %s)", config.TransportStdio, config.TransportHTTP),
	)

	return cobraCmd, nil
}

func (c *ConfigValidateCmd) run(cobraCmd *cobra.Command, _ []string) error {
	var predicates []config.ValidationPredicate
	for _, t := range c.RequireTransports {
		t = strings.ToLower(strings.TrimSpace(t))
		if !slices.Contains([]string{config.TransportStdio, config.TransportHTTP}, t) {
			return fmt.Errorf("unknown transport '%s'", t)
		}
		predicates = append(predicates, config.RequireTransport(t))
	}

	cfg, err := c.LoadConfig(config.NewValidatingLoader(c.cfgLoader, predicates...))
	if err != nil {
		_, _ = fmt.Fprintf(cobraCmd.ErrOrStderr(), "✗ Configuration validation failed: %v\n", err)
		return err
	}

	if warning := cmd.CredentialWarning(cfg); warning != "" {
		_, _ = fmt.Fprintf(cobraCmd.ErrOrStderr(), "⚠ %s\n", warning)
	}

	_, _ = fmt.Fprintf(cobraCmd.OutOrStdout(), "✓ Configuration is valid\n")
	return nil
}
