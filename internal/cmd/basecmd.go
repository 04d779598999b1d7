package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/flags"
	"github.com/mozilla-ai/mcprt/internal/perms"
)

// LoggerName is the name of the root logger.
const LoggerName = "mcprt"

// BaseCmd holds state shared by every command.
type BaseCmd struct {
	logger hclog.Logger

	// errOut receives log output when no log file is configured.
	errOut io.Writer
}

// SetLogger updates the command's logger.
func (c *BaseCmd) SetLogger(logger hclog.Logger) {
	c.logger = logger
}

// SetErrOut replaces the writer used for logs when no log file is configured.
func (c *BaseCmd) SetErrOut(w io.Writer) {
	c.errOut = w
}

// Logger returns the command's logger, building it from flags on first use.
// Logs go to the configured log file, otherwise to stderr.
// Standard output is never used since it carries the stdio transport.
func (c *BaseCmd) Logger() (hclog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}

	level := hclog.LevelFromString(logLevel())
	if level == hclog.NoLevel {
		return nil, fmt.Errorf("invalid log level '%s'", flags.LogLevel)
	}

	var output io.Writer = os.Stderr
	if c.errOut != nil {
		output = c.errOut
	}

	if logPath := strings.TrimSpace(flags.LogPath); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, perms.RegularFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file (%s): %w", logPath, err)
		}
		output = f
	}

	c.logger = hclog.New(&hclog.LoggerOptions{
		Name:   LoggerName,
		Level:  level,
		Output: output,
	})

	return c.logger, nil
}

// LoadConfig loads the configuration file named by the config-file flag.
func (c *BaseCmd) LoadConfig(loader config.Loader) (*config.Config, error) {
	if loader == nil {
		return nil, fmt.Errorf("config loader cannot be nil")
	}

	path := strings.TrimSpace(flags.ConfigFile)
	if path == "" {
		path = flags.DefaultConfigFile
	}

	return loader.Load(path)
}

// CredentialWarning describes why a loaded configuration file holding credentials
// should be made private, or returns an empty string when there is nothing to report.
func CredentialWarning(cfg *config.Config) string {
	if cfg == nil || cfg.Path() == "" || !cfg.HasCredentials() {
		return ""
	}

	mode, private, err := perms.CheckPrivate(cfg.Path())
	if err != nil || private {
		return ""
	}

	return fmt.Sprintf(
		"configuration file %s contains credentials but has mode %04o, consider restricting it to %04o",
		cfg.Path(),
		mode,
		perms.SecureFile,
	)
}

func logLevel() string {
	if lvl := strings.ToLower(strings.TrimSpace(flags.LogLevel)); lvl != "" {
		return lvl
	}
	return flags.DefaultLogLevel
}
