// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// DefaultPublicHost is the public hostname used when neither config nor
// CUSTOM_DOMAIN provide one.
const DefaultPublicHost = "proxy.92.run"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/api-hub-proxy/config.toml",
	"configs/config.toml",
}

// defaultInternalMarkers are substrings of the hosting platform's private routing
// hostnames. Forwarded-host values containing any of them are never used as origin.
var defaultInternalMarkers = []string{"pages-scf", "qcloudteo.com"}

// reservedSegments are first path segments served by the gateway itself.
var reservedSegments = []string{"", "favicon.ico", "robots.txt", "sitemap.xml", "index", "index.html", "healthz", "proxy"}

// Header source names accepted in [runtime] header_source.
const (
	HeaderSourceStandard = "standard"
	HeaderSourceFlat     = "flat"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	DefaultHost string `kong:"help='Public hostname used when no trusted forwarded host is present.',env='CUSTOM_DOMAIN'"`
	LogLevel    string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig    `toml:"server"`
	Origin   OriginConfig    `toml:"origin"`
	Runtime  RuntimeConfig   `toml:"runtime"`
	Upstream UpstreamConfig  `toml:"upstream"`
	Static   StaticConfig    `toml:"static"`
	Log      LogConfig       `toml:"log"`
	Metrics  MetricsConfig   `toml:"metrics"`
	Services []ServiceConfig `toml:"services"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (8000)
	BodyMaxBytes int64  `toml:"body_max_bytes"` // 0 means unlimited
}

// OriginConfig controls public origin detection.
type OriginConfig struct {
	DefaultHost     string   `toml:"default_host"`
	InternalMarkers []string `toml:"internal_markers"`
}

// RuntimeConfig describes the shape of request objects handed over by the host runtime.
type RuntimeConfig struct {
	HeaderSource string `toml:"header_source"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
	MaxRedirects    int `toml:"max_redirects"`
}

// StaticConfig locates static assets on disk.
type StaticConfig struct {
	FaviconPath string `toml:"favicon_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServiceConfig declares one proxied upstream. A non-empty [[services]] list
// replaces the built-in service table.
type ServiceConfig struct {
	Name        string   `toml:"name"`
	Host        string   `toml:"host"`
	Paths       []string `toml:"paths"`
	Description string   `toml:"description"`
	Icon        string   `toml:"icon"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/api-hub-proxy/config.toml then configs/config.toml and falls back to
// built-in defaults when neither exists.
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

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.DefaultHost != "" {
		c.Origin.DefaultHost = cli.DefaultHost
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxRedirects < 0 {
		return fmt.Errorf("upstream.max_redirects must be non-negative; got %d", c.Upstream.MaxRedirects)
	}
	if strings.ContainsAny(c.Origin.DefaultHost, "/ ") {
		return fmt.Errorf("origin.default_host must be a bare host[:port]; got %q", c.Origin.DefaultHost)
	}
	for _, m := range c.Origin.InternalMarkers {
		if m == "" {
			return errors.New("origin.internal_markers must not contain empty strings")
		}
	}

	switch strings.ToLower(c.Runtime.HeaderSource) {
	case HeaderSourceStandard, HeaderSourceFlat, "":
	default:
		return fmt.Errorf("runtime.header_source must be one of: standard, flat; got %q", c.Runtime.HeaderSource)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	reserved := append([]string(nil), reservedSegments...)
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, r := range []string{"/healthz", "/proxy/status", "/favicon.ico", "/robots.txt", "/sitemap.xml"} {
			if p == r || strings.HasPrefix(p, r+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, r)
			}
		}
		reserved = append(reserved, firstSegment(p))
	}

	return c.validateServices(reserved)
}

func (c *Config) validateServices(reserved []string) error {
	seen := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("services[%d].name is required", i)
		}
		if strings.ContainsAny(s.Name, "/?# ") {
			return fmt.Errorf("services[%d].name must be a single path segment; got %q", i, s.Name)
		}
		for _, r := range reserved {
			if s.Name == r {
				return fmt.Errorf("services[%d].name %q conflicts with a reserved route", i, s.Name)
			}
		}
		if seen[s.Name] {
			return fmt.Errorf("services[%d].name %q is declared more than once", i, s.Name)
		}
		seen[s.Name] = true

		if s.Host == "" {
			return fmt.Errorf("services[%d].host is required", i)
		}
		if strings.Contains(s.Host, "://") || strings.ContainsAny(s.Host, "?# ") {
			return fmt.Errorf("services[%d].host must be a bare host without scheme; got %q", i, s.Host)
		}
	}

	// The metrics segment is only reserved while metrics are served.
	if c.Metrics.Enabled && c.Metrics.Path == "" && seen["metrics"] {
		return errors.New(`service name "metrics" conflicts with the default metrics.path`)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish between
// an explicit 0 and an omitted key; body_max_bytes = 0 keeps bodies unlimited.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Origin.DefaultHost == "" {
		c.Origin.DefaultHost = DefaultPublicHost
	}
	if len(c.Origin.InternalMarkers) == 0 {
		c.Origin.InternalMarkers = append([]string(nil), defaultInternalMarkers...)
	}
	if c.Runtime.HeaderSource == "" {
		c.Runtime.HeaderSource = HeaderSourceStandard
	}
	c.Runtime.HeaderSource = strings.ToLower(c.Runtime.HeaderSource)
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 600
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxRedirects == 0 {
		c.Upstream.MaxRedirects = 10
	}
	if c.Static.FaviconPath == "" {
		c.Static.FaviconPath = "public/favicon.ico"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
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

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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
		logger.Warn("config file is writable by group/others; the service table could be altered",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
