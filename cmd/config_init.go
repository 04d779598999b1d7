package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/mcprt/internal/cmd"
	cmdopts "github.com/mozilla-ai/mcprt/internal/cmd/options"
	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/flags"
)

type ConfigInitCmd struct {
	*cmd.BaseCmd
	cfgInitializer config.Initializer
}

func NewConfigInitCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &ConfigInitCmd{
		BaseCmd:        baseCmd,
		cfgInitializer: opts.ConfigInitializer,
	}

	cobraCmd := &cobra.Command{
		Use:   "init",
		Short: "Creates a configuration file with default values",
		Long: "Creates a configuration file with default values at the path given by --config-file. " +
			"The file extension selects the encoding (.toml, .yaml, .yml or .json)",
		RunE: c.run,
		Args: cobra.NoArgs,
	}

	return cobraCmd, nil
}

func (c *ConfigInitCmd) run(cmd *cobra.Command, _ []string) error {
	path := strings.TrimSpace(flags.ConfigFile)
	if path == "" {
		path = flags.DefaultConfigFile
	}

	if err := c.cfgInitializer.Init(path); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Created configuration file: %s\n", path)
	return nil
}
