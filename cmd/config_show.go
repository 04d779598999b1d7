package cmd

import (
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/mcprt/internal/cmd"
	cmdopts "github.com/mozilla-ai/mcprt/internal/cmd/options"
	"github.com/mozilla-ai/mcprt/internal/config"
)

const redacted = "********"

type ConfigShowCmd struct {
	*cmd.BaseCmd
	Format      cmd.OutputFormat
	ShowSecrets bool
	cfgLoader   config.Loader
}

func NewConfigShowCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &ConfigShowCmd{
		BaseCmd:   baseCmd,
		Format:    cmd.FormatTOML,
		cfgLoader: opts.ConfigLoader,
	}

	cobraCmd := &cobra.Command{
		Use:   "show",
		Short: "Displays the effective configuration",
		Long:  "Displays the configuration file with defaults applied. Credentials are redacted unless --show-secrets is set",
		RunE:  c.run,
		Args:  cobra.NoArgs,
	}

	allowed := cmd.AllowedOutputFormats()
	cobraCmd.Flags().Var(
		&c.Format,
		"format",
		fmt.Sprintf("Specify the output format (one of: %s)", allowed.String()),
	)

	cobraCmd.Flags().BoolVar(
		&c.ShowSecrets,
		"show-secrets",
		false,
		"Include API keys, JWT secrets and password hashes in the output",
	)

	return cobraCmd, nil
}

func (c *ConfigShowCmd) run(cmd *cobra.Command, _ []string) error {
	cfg, err := c.LoadConfig(c.cfgLoader)
	if err != nil {
		return err
	}

	if !c.ShowSecrets {
		cfg = redact(cfg)
	}

	data, err := cfg.Marshal(string(c.Format))
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// redact returns a copy of cfg with credentials masked.
func redact(cfg *config.Config) *config.Config {
	out := *cfg

	if len(cfg.Auth.APIKeys) > 0 {
		out.Auth.APIKeys = make([]string, len(cfg.Auth.APIKeys))
		for i := range out.Auth.APIKeys {
			out.Auth.APIKeys[i] = redacted
		}
	}

	if cfg.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = redacted
	}

	if len(cfg.Auth.BasicUsers) > 0 {
		out.Auth.BasicUsers = maps.Clone(cfg.Auth.BasicUsers)
		for user := range out.Auth.BasicUsers {
			out.Auth.BasicUsers[user] = redacted
		}
	}

	return &out
}
