// Package config handles CLI parsing, TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/fwd-proxy/config.toml",
	"configs/config.toml",
}

// Defaults for the forwarding and admin listeners.
const (
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 3000
	DefaultAdminPort = 9090
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string           `kong:"short='c',help='Path to TOML config file.'"`
	Host      string           `kong:"help='Listen host (overrides config).'"`
	Port      int              `kong:"short='p',help='Listen port (overrides config).'"`
	LogLevel  string           `kong:"help='Log level: debug|info|warn|error (overrides config).'"`
	LogFormat string           `kong:"help='Log format: json|text (overrides config).'"`
	Version   kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Admin    AdminConfig    `toml:"admin"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds forwarding listener settings.
type ServerConfig struct {
	Host          string          `toml:"host"`
	Port          int             `toml:"port"` // 0 means "use default" (3000)
	ProxyProtocol bool            `toml:"proxy_protocol"`
	RateLimit     RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds outbound connection settings. The upstream host itself
// is fixed and not configurable.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"` // 0 disables the client timeout
	IdleConnections int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AdminConfig holds the health, status and metrics listener settings.
type AdminConfig struct {
	Enabled     bool   `toml:"enabled"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	MetricsPath string `toml:"metrics_path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given, it searches /etc/fwd-proxy/config.toml then
// configs/config.toml; if neither exists the built-in defaults are used.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file and no flags are given.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// FilePath returns the config file that was loaded, or empty string.
func (c *Config) FilePath() string {
	return c.filePath
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
}

func (c *Config) validate() error {
	var err error

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port))
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("admin.port must be 0–65535; got %d", c.Admin.Port))
	}
	if c.Upstream.TimeoutSeconds < 0 {
		err = multierr.Append(err, fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds))
	}
	if c.Upstream.IdleConnections < 0 {
		err = multierr.Append(err, fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections))
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		err = multierr.Append(err, fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond))
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		err = multierr.Append(err, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		err = multierr.Append(err, fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format))
	}

	// Metrics path validation (only when the admin listener is enabled).
	if c.Admin.Enabled && c.Admin.MetricsPath != "" {
		p := c.Admin.MetricsPath
		if p[0] != '/' {
			err = multierr.Append(err, fmt.Errorf("admin.metrics_path must start with '/'; got %q", p))
		}
		for _, reserved := range []string{"/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				err = multierr.Append(err, fmt.Errorf("admin.metrics_path %q conflicts with reserved route %q", p, reserved))
			}
		}
	}

	return err
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Admin.Host == "" {
		c.Admin.Host = DefaultHost
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = DefaultAdminPort
	}
	if c.Admin.MetricsPath == "" {
		c.Admin.MetricsPath = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the forwarding listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WarnPermissions logs a warning if the config file is writable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		logger.Warn("config file is writable by group/others; consider chmod 644",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
