package config

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mozilla-ai/mcprt/internal/errors"
	"github.com/mozilla-ai/mcprt/internal/perms"
)

const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

const (
	DefaultServerName      = "mcprt"
	DefaultServerVersion   = "0.1.0"
	DefaultAddr            = "0.0.0.0:8090"
	DefaultBasePath        = "/mcp"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultAuthHeader      = "X-API-Key"
	DefaultRateRequests    = 100
	DefaultRateWindow      = time.Minute
	DefaultAccessTTL       = 15 * time.Minute
	DefaultRefreshTTL      = 7 * 24 * time.Hour
)

// Default returns a Config populated with default values for every section.
func Default() *Config {
	return &Config{
		Server: ServerSection{
			Name:       DefaultServerName,
			Version:    DefaultServerVersion,
			Transports: []string{TransportStdio},
		},
		HTTP: HTTPSection{
			Addr:            DefaultAddr,
			BasePath:        DefaultBasePath,
			RequestTimeout:  Duration(DefaultRequestTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Auth: AuthSection{
			Mode:       AuthModeAPIKey,
			HeaderName: DefaultAuthHeader,
		},
		RateLimit: RateLimitSection{
			Requests: DefaultRateRequests,
			Window:   Duration(DefaultRateWindow),
		},
		Session: SessionSection{
			AccessTTL:  Duration(DefaultAccessTTL),
			RefreshTTL: Duration(DefaultRefreshTTL),
		},
		Metrics: MetricsSection{
			MaxValues:        10_000,
			Retention:        Duration(time.Hour),
			CleanupInterval:  Duration(5 * time.Minute),
			SnapshotInterval: Duration(30 * time.Second),
			MaxResponseTimes: 1_000,
			MaxSnapshots:     1_000,
		},
	}
}

// Init creates a configuration file containing the defaults.
// The encoding is selected by the file extension.
func (d *DefaultLoader) Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	data, err := Default().Marshal(formatForPath(path))
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, perms.RegularFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Load decodes the file at path on top of the defaults and validates the result.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
func (d *DefaultLoader) Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrConfigLoadFailed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file cannot be found, run: 'mcprt config init'", ErrConfigLoadFailed)
		}
		return nil, fmt.Errorf("%w: failed to read config file (%s): %w", ErrConfigLoadFailed, path, err)
	}

	cfg, err := Parse(data, formatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode config from file (%s): %w", ErrConfigLoadFailed, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: failed to validate existing config (%s): %w", ErrConfigLoadFailed, path, err)
	}

	// Update the path that loaded this file to track it.
	cfg.configFilePath = path

	return cfg, nil
}

// Parse decodes data in the given format on top of the defaults without validating it.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format '%s'", format)
	}

	cfg.applyDefaults()

	return cfg, nil
}

// Marshal encodes the configuration as toml, yaml or json.
func (c *Config) Marshal(format string) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, fmt.Errorf("failed to encode config as TOML: %w", err)
		}
		return buf.Bytes(), nil
	case FormatYAML:
		data, err := yaml.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("failed to encode config as YAML: %w", err)
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode config as JSON: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported config format '%s'", format)
	}
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.configFilePath
}

// HasCredentials reports whether the configuration carries API keys, a JWT secret or password hashes.
func (c *Config) HasCredentials() bool {
	return len(c.Auth.APIKeys) > 0 || c.Auth.JWTSecret != "" || len(c.Auth.BasicUsers) > 0
}

// Validate orchestrates validation of every section.
// The returned error wraps errors.ErrConfiguration.
func (c *Config) Validate() error {
	var validationErrors []error

	sections := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"http", c.HTTP.Validate},
		{"auth", c.Auth.Validate},
		{"rate limit", c.RateLimit.Validate},
		{"session", c.Session.Validate},
		{"metrics", c.Metrics.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			validationErrors = append(validationErrors, fmt.Errorf("%s configuration error: %w", s.name, err))
		}
	}

	if err := stdErrors.Join(validationErrors...); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfiguration, err)
	}

	return nil
}

// applyDefaults fills values that a decoded file explicitly left empty.
func (c *Config) applyDefaults() {
	if c.HTTP.BasePath == "" {
		c.HTTP.BasePath = DefaultBasePath
	}
	c.HTTP.BasePath = "/" + strings.Trim(c.HTTP.BasePath, "/")
	if c.HTTP.BasePath == "/" {
		c.HTTP.BasePath = ""
	}

	if c.Auth.HeaderName == "" {
		c.Auth.HeaderName = DefaultAuthHeader
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthModeAPIKey
	}
}

func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}
