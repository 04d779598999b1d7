package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// serverNamePattern allows names such as 'weather-tools' or 'acme.search_v2'.
var serverNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// Validate implements validation for ServerSection.
func (s *ServerSection) Validate() error {
	var validationErrors []error

	if !serverNamePattern.MatchString(s.Name) {
		validationErrors = append(validationErrors, NewErrInvalidValue("server.name", s.Name))
	}

	if _, err := semver.StrictNewVersion(s.Version); err != nil {
		validationErrors = append(
			validationErrors,
			fmt.Errorf("%w: %w", NewErrInvalidValue("server.version", s.Version), err),
		)
	}

	if len(s.Transports) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("at least one transport must be enabled"))
	}
	seen := make(map[string]struct{}, len(s.Transports))
	for _, t := range s.Transports {
		if t != TransportStdio && t != TransportHTTP {
			validationErrors = append(validationErrors, NewErrInvalidValue("server.transports", t))
			continue
		}
		if _, ok := seen[t]; ok {
			validationErrors = append(validationErrors, fmt.Errorf("duplicate transport '%s'", t))
		}
		seen[t] = struct{}{}
	}

	return errors.Join(validationErrors...)
}

// HasTransport reports whether the named transport is enabled.
func (s *ServerSection) HasTransport(name string) bool {
	return slices.Contains(s.Transports, name)
}

// Validate implements validation for HTTPSection.
func (h *HTTPSection) Validate() error {
	var validationErrors []error

	if err := validateAddr(h.Addr); err != nil {
		validationErrors = append(
			validationErrors,
			fmt.Errorf("HTTP address \"%s\" appears to be invalid (expected format: host:port): %w", h.Addr, err),
		)
	}

	if h.BasePath != "" && (!strings.HasPrefix(h.BasePath, "/") || strings.ContainsAny(h.BasePath, " \t\n\r?#")) {
		validationErrors = append(validationErrors, NewErrInvalidValue("http.base_path", h.BasePath))
	}

	if h.RequestTimeout <= 0 {
		validationErrors = append(validationErrors, fmt.Errorf("HTTP request timeout must be positive"))
	}

	if h.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, fmt.Errorf("HTTP shutdown timeout must be positive"))
	}

	if err := h.CORS.Validate(); err != nil {
		validationErrors = append(validationErrors, fmt.Errorf("CORS configuration error: %w", err))
	}

	return errors.Join(validationErrors...)
}

// Validate implements validation for CORSSection.
func (c *CORSSection) Validate() error {
	if !c.Enable {
		return nil
	}

	var validationErrors []error

	for _, origin := range c.Origins {
		// See: https://developer.mozilla.org/en-US/docs/Web/HTTP/Reference/Headers/Access-Control-Allow-Origin#sect
		if origin == "*" {
			continue
		}
		if origin == "" {
			validationErrors = append(validationErrors, fmt.Errorf("CORS origin cannot be empty"))
		}
	}

	validMethods := ValidHTTPRequestMethods()
	for _, method := range c.Methods {
		if method == "*" {
			continue
		}
		if method == "" {
			validationErrors = append(validationErrors, fmt.Errorf("CORS method cannot be empty"))
			continue
		}
		if _, ok := validMethods[method]; !ok {
			validationErrors = append(
				validationErrors,
				fmt.Errorf("CORS method %s is not a valid HTTP request method", method),
			)
		}
	}

	if c.MaxAge < 0 {
		validationErrors = append(validationErrors, fmt.Errorf("CORS max age cannot be negative"))
	}

	return errors.Join(validationErrors...)
}

// Validate implements validation for AuthSection.
// Credentials are only required for the selected mode when authentication is enabled.
func (a *AuthSection) Validate() error {
	if !a.Enabled {
		return nil
	}

	switch a.Mode {
	case AuthModeAPIKey:
		if strings.TrimSpace(a.HeaderName) == "" {
			return fmt.Errorf("auth header name cannot be empty")
		}
		if len(a.APIKeys) == 0 {
			return fmt.Errorf("auth mode '%s' requires at least one API key", a.Mode)
		}
		if slices.Contains(a.APIKeys, "") {
			return fmt.Errorf("API keys cannot be empty")
		}
	case AuthModeBearer:
		// Session tokens need no static configuration, JWTSecret is optional.
	case AuthModeBasic:
		if len(a.BasicUsers) == 0 {
			return fmt.Errorf("auth mode '%s' requires at least one user", a.Mode)
		}
	default:
		return NewErrInvalidValue("auth.mode", a.Mode)
	}

	for _, p := range a.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			return NewErrInvalidValue("auth.public_paths", p)
		}
	}

	return nil
}

// Validate implements validation for RateLimitSection.
func (r *RateLimitSection) Validate() error {
	if !r.Enabled {
		return nil
	}

	var validationErrors []error
	if r.Requests <= 0 {
		validationErrors = append(validationErrors, NewErrInvalidValue("rate_limit.requests", strconv.Itoa(r.Requests)))
	}
	if time.Duration(r.Window) < time.Millisecond {
		validationErrors = append(validationErrors, NewErrInvalidValue("rate_limit.window", r.Window.String()))
	}

	return errors.Join(validationErrors...)
}

// Validate implements validation for SessionSection.
func (s *SessionSection) Validate() error {
	if s.AccessTTL <= 0 {
		return NewErrInvalidValue("session.access_ttl", s.AccessTTL.String())
	}
	if s.RefreshTTL < s.AccessTTL {
		return fmt.Errorf("session refresh TTL (%s) must not be shorter than access TTL (%s)", s.RefreshTTL, s.AccessTTL)
	}
	return nil
}

// Validate implements validation for MetricsSection.
func (m *MetricsSection) Validate() error {
	var validationErrors []error

	if m.MaxValues <= 0 {
		validationErrors = append(validationErrors, NewErrInvalidValue("metrics.max_values", strconv.Itoa(m.MaxValues)))
	}
	if m.MaxResponseTimes < 2 {
		validationErrors = append(
			validationErrors,
			NewErrInvalidValue("metrics.max_response_times", strconv.Itoa(m.MaxResponseTimes)),
		)
	}
	if m.MaxSnapshots < 2 {
		validationErrors = append(validationErrors, NewErrInvalidValue("metrics.max_snapshots", strconv.Itoa(m.MaxSnapshots)))
	}
	for key, d := range map[string]Duration{
		"metrics.retention":         m.Retention,
		"metrics.cleanup_interval":  m.CleanupInterval,
		"metrics.snapshot_interval": m.SnapshotInterval,
	} {
		if d <= 0 {
			validationErrors = append(validationErrors, NewErrInvalidValue(key, d.String()))
		}
	}

	return errors.Join(validationErrors...)
}

// ValidHTTPRequestMethods returns the set of methods accepted in CORS configuration.
func ValidHTTPRequestMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodGet:     {},
		http.MethodHead:    {},
		http.MethodPost:    {},
		http.MethodPut:     {},
		http.MethodPatch:   {},
		http.MethodDelete:  {},
		http.MethodConnect: {},
		http.MethodOptions: {},
		http.MethodTrace:   {},
	}
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// String returns a human-readable string representation of the duration.
func (d Duration) String() string {
	duration := time.Duration(d)
	if duration == 0 {
		return "0s"
	}

	// List of duration units in descending order.
	units := []struct {
		unit   time.Duration
		suffix string
	}{
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
		{time.Millisecond, "ms"},
		{time.Microsecond, "µs"},
		{time.Nanosecond, "ns"},
	}

	for _, u := range units {
		if duration%u.unit == 0 {
			return fmt.Sprintf("%d%s", duration/u.unit, u.suffix)
		}
	}

	return fmt.Sprintf("%dns", duration)
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}
	*d = Duration(duration)
	return nil
}

// validateAddr performs host:port validation. Ports above 65535 are rejected,
// port 0 selects an ephemeral port.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	if strings.ContainsAny(host, " \t\n\r") || len(host) > 253 {
		return fmt.Errorf("invalid host '%s'", host)
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port '%s'", port)
	}
	if p < 0 || p > 65535 {
		return fmt.Errorf("port %d out of range", p)
	}

	return nil
}
