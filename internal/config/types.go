package config

import (
	"time"
)

var _ Provider = (*DefaultLoader)(nil)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

const (
	AuthModeAPIKey = "api-key"
	AuthModeBearer = "bearer"
	AuthModeBasic  = "basic"
)

type Loader interface {
	Load(path string) (*Config, error)
}

type Initializer interface {
	Init(path string) error
}

type Provider interface {
	Initializer
	Loader
}

type DefaultLoader struct{}

// Config represents the .mcprt.toml (or YAML) file structure.
//
// NOTE: if you add/remove fields you must review Default, applyDefaults and the section Validate implementations.
type Config struct {
	Server    ServerSection    `json:"server" toml:"server" yaml:"server"`
	HTTP      HTTPSection      `json:"http" toml:"http" yaml:"http"`
	Auth      AuthSection      `json:"auth" toml:"auth" yaml:"auth"`
	RateLimit RateLimitSection `json:"rateLimit" toml:"rate_limit" yaml:"rate_limit"`
	Session   SessionSection   `json:"session" toml:"session" yaml:"session"`
	Metrics   MetricsSection   `json:"metrics" toml:"metrics" yaml:"metrics"`

	configFilePath string
}

// ServerSection identifies the runtime and selects its transports.
type ServerSection struct {
	// Name of the server, e.g. 'weather-tools'.
	Name string `json:"name" toml:"name" yaml:"name"`

	// Version is a strict semantic version, e.g. '1.2.3'.
	Version string `json:"version" toml:"version" yaml:"version"`

	Description string `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty"`

	// Transports lists the enabled transports: 'stdio' and/or 'http'.
	Transports []string `json:"transports" toml:"transports" yaml:"transports"`
}

// HTTPSection configures the HTTP transport.
type HTTPSection struct {
	// Addr to bind the HTTP transport (e.g., "0.0.0.0:8090").
	Addr string `json:"addr" toml:"addr" yaml:"addr"`

	// BasePath prefixes every route, e.g. '/mcp'.
	BasePath string `json:"basePath" toml:"base_path" yaml:"base_path"`

	// RequestTimeout bounds how long a transport waits for a handler result.
	RequestTimeout Duration `json:"requestTimeout" toml:"request_timeout" yaml:"request_timeout"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout Duration `json:"shutdownTimeout" toml:"shutdown_timeout" yaml:"shutdown_timeout"`

	CORS CORSSection `json:"cors" toml:"cors" yaml:"cors"`
}

// CORSSection contains Cross-Origin Resource Sharing (CORS) configuration.
type CORSSection struct {
	Enable        bool     `json:"enable" toml:"enable" yaml:"enable"`
	Origins       []string `json:"allowOrigins,omitempty" toml:"allow_origins,omitempty" yaml:"allow_origins,omitempty"`
	Methods       []string `json:"allowMethods,omitempty" toml:"allow_methods,omitempty" yaml:"allow_methods,omitempty"`
	Headers       []string `json:"allowHeaders,omitempty" toml:"allow_headers,omitempty" yaml:"allow_headers,omitempty"`
	ExposeHeaders []string `json:"exposeHeaders,omitempty" toml:"expose_headers,omitempty" yaml:"expose_headers,omitempty"`
	Credentials   bool     `json:"allowCredentials" toml:"allow_credentials" yaml:"allow_credentials"`
	MaxAge        Duration `json:"maxAge" toml:"max_age" yaml:"max_age"`
}

// AuthSection configures HTTP transport authentication.
type AuthSection struct {
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`

	// Mode is one of 'api-key', 'bearer' or 'basic'.
	Mode string `json:"mode" toml:"mode" yaml:"mode"`

	// HeaderName carries the API key in 'api-key' mode.
	HeaderName string `json:"headerName" toml:"header_name" yaml:"header_name"`

	APIKeys []string `json:"apiKeys,omitempty" toml:"api_keys,omitempty" yaml:"api_keys,omitempty"`

	// JWTSecret enables HS256 JWT validation in 'bearer' mode, in addition to session tokens.
	JWTSecret string `json:"jwtSecret,omitempty" toml:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`

	// BasicUsers maps user names to bcrypt password hashes for 'basic' mode.
	BasicUsers map[string]string `json:"basicUsers,omitempty" toml:"basic_users,omitempty" yaml:"basic_users,omitempty"`

	// PublicPaths are route paths (relative to the base path) that skip authentication.
	PublicPaths []string `json:"publicPaths,omitempty" toml:"public_paths,omitempty" yaml:"public_paths,omitempty"`
}

// RateLimitSection configures per client and route request budgets.
type RateLimitSection struct {
	Enabled  bool     `json:"enabled" toml:"enabled" yaml:"enabled"`
	Requests int      `json:"requests" toml:"requests" yaml:"requests"`
	Window   Duration `json:"window" toml:"window" yaml:"window"`
}

// SessionSection configures token lifetimes.
type SessionSection struct {
	AccessTTL  Duration `json:"accessTTL" toml:"access_ttl" yaml:"access_ttl"`
	RefreshTTL Duration `json:"refreshTTL" toml:"refresh_ttl" yaml:"refresh_ttl"`
}

// MetricsSection configures the metrics collector.
type MetricsSection struct {
	MaxValues        int      `json:"maxValues" toml:"max_values" yaml:"max_values"`
	Retention        Duration `json:"retention" toml:"retention" yaml:"retention"`
	CleanupInterval  Duration `json:"cleanupInterval" toml:"cleanup_interval" yaml:"cleanup_interval"`
	SnapshotInterval Duration `json:"snapshotInterval" toml:"snapshot_interval" yaml:"snapshot_interval"`
	MaxResponseTimes int      `json:"maxResponseTimes" toml:"max_response_times" yaml:"max_response_times"`
	MaxSnapshots     int      `json:"maxSnapshots" toml:"max_snapshots" yaml:"max_snapshots"`
}

// Duration is a custom time.Duration type that provides improved marshaling.
type Duration time.Duration
