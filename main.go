package main

import (
	"os"

	"github.com/mozilla-ai/mcprt/cmd"
)

func main() {
	// Execute the root command, cobra has already printed any error.
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
