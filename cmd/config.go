package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mozilla-ai/mcprt/internal/cmd"
	cmdopts "github.com/mozilla-ai/mcprt/internal/cmd/options"
)

func NewConfigCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	cobraCmd := &cobra.Command{
		Use:   "config",
		Short: "Manages runtime configuration.",
		Long:  "Creates, validates and displays the runtime configuration file.",
	}

	fns := []createCmdFunc{
		NewConfigInitCmd,
		NewConfigValidateCmd,
		NewConfigShowCmd,
	}

	for _, fn := range fns {
		tempCmd, err := fn(baseCmd, opt...)
		if err != nil {
			return nil, err
		}
		cobraCmd.AddCommand(tempCmd)
	}

	return cobraCmd, nil
}
