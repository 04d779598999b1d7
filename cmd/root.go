package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/mcprt/internal/cmd"
	cmdopts "github.com/mozilla-ai/mcprt/internal/cmd/options"
	"github.com/mozilla-ai/mcprt/internal/flags"
)

var version = "dev" // Set at build time using -ldflags

// createCmdFunc builds a sub-command sharing the root's base command and options.
type createCmdFunc func(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error)

type RootCmd struct {
	*cmd.BaseCmd
}

// Execute builds and runs the root command with the default options.
func Execute(opt ...cmdopts.CmdOption) error {
	rootCmd, err := NewRootCmd(&cmd.BaseCmd{}, opt...)
	if err != nil {
		return fmt.Errorf("error creating root command: %w", err)
	}

	return rootCmd.Execute()
}

func NewRootCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	c := &RootCmd{
		BaseCmd: baseCmd,
	}

	rootCmd := &cobra.Command{
		Use:          "mcprt <command> [args]",
		Short:        "'mcprt' serves MCP tool handlers over stdio and HTTP.",
		Long:         c.longDescription(),
		SilenceUsage: true,
		Version:      version,
	}

	// Global flags
	flags.InitFlags(rootCmd.PersistentFlags())

	fns := []createCmdFunc{
		NewServeCmd,
		NewConfigCmd,
	}

	for _, fn := range fns {
		tempCmd, err := fn(baseCmd, opt...)
		if err != nil {
			return nil, err
		}
		rootCmd.AddCommand(tempCmd)
	}

	rootCmd.SetErr(os.Stderr)

	return rootCmd, nil
}

func (c *RootCmd) longDescription() string {
	return `The 'mcprt' CLI runs an MCP server runtime: it registers tool handlers, validates their
arguments, records execution metrics and exposes everything over a line-delimited JSON-RPC
stdio transport and an HTTP API.`
}
