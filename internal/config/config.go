// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"shapes-debugger/internal/model"
)

// ControlPrefix is the path prefix reserved for the debugger's own routes.
// Everything else is forwarded upstream.
const ControlPrefix = "/__debugger"

// Fixed control routes.
const (
	HealthzPath = ControlPrefix + "/healthz"
	StatusPath  = ControlPrefix + "/status"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"shapes-debugger.toml",
	"configs/config.toml",
	"/etc/shapes-debugger/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config       string        `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host         string        `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port         int           `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	ProdURL      string        `kong:"help='Production API base URL (overrides config).',env='SHAPES_PROD_URL'"`
	DevURL       string        `kong:"help='Local dev server base URL, probed before production (overrides config).',env='SHAPES_DEV_URL'"`
	ProbeTimeout time.Duration `kong:"help='Per-candidate probe timeout (overrides config).',env='PROBE_TIMEOUT'"`
	Color        string        `kong:"help='Console colours: auto|always|never (overrides config).',env='COLOR'"`
	LogLevel     string        `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Display  DisplayConfig  `toml:"display"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8090)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds upstream discovery and connection settings.
type UpstreamConfig struct {
	ProdURL         string            `toml:"prod_url"`
	Candidates      []CandidateConfig `toml:"candidates"`
	ProbeTimeoutMS  int               `toml:"probe_timeout_ms"`
	TimeoutSeconds  int               `toml:"timeout_seconds"` // 0 means no timeout
	IdleConnections int               `toml:"idle_connections"`
}

// CandidateConfig is a non-production upstream probed at startup.
type CandidateConfig struct {
	Label string `toml:"label"`
	URL   string `toml:"url"`
}

// DisplayConfig controls the traffic console.
type DisplayConfig struct {
	Color  string `toml:"color"`
	Output string `toml:"output"`
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

const (
	defaultProdURL = "https://api.shapes.inc"
	defaultDevURL  = "http://localhost:8080"
)

// Load reads the TOML config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), the search
// paths are tried in order; finding none is not an error.
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
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
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
	if cli.ProdURL != "" {
		c.Upstream.ProdURL = cli.ProdURL
	}
	if cli.DevURL != "" {
		c.setDevURL(cli.DevURL)
	}
	if cli.ProbeTimeout > 0 {
		c.Upstream.ProbeTimeoutMS = int(cli.ProbeTimeout / time.Millisecond)
	}
	if cli.Color != "" {
		c.Display.Color = cli.Color
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// setDevURL replaces the first dev candidate, or appends one.
func (c *Config) setDevURL(u string) {
	for i := range c.Upstream.Candidates {
		if c.Upstream.Candidates[i].Label == string(model.LabelDev) {
			c.Upstream.Candidates[i].URL = u
			return
		}
	}
	c.Upstream.Candidates = append(c.Upstream.Candidates, CandidateConfig{Label: string(model.LabelDev), URL: u})
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. timeout_seconds is the exception:
// its zero value already means "no timeout".
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 32 * 1024 * 1024 // 32 MB
	}
	if c.Upstream.ProdURL == "" {
		c.Upstream.ProdURL = defaultProdURL
	}
	if c.Upstream.Candidates == nil {
		c.Upstream.Candidates = []CandidateConfig{{Label: string(model.LabelDev), URL: defaultDevURL}}
	}
	if c.Upstream.ProbeTimeoutMS == 0 {
		c.Upstream.ProbeTimeoutMS = 200
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Display.Color == "" {
		c.Display.Color = "auto"
	}
	if c.Display.Output == "" {
		c.Display.Output = "stdout"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = ControlPrefix + "/metrics"
	}
}

func (c *Config) validate() error {
	// Production URL: the guaranteed fallback, so it must be usable.
	u, err := url.Parse(c.Upstream.ProdURL)
	if err != nil {
		return fmt.Errorf("upstream.prod_url is not a valid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.prod_url must be an absolute http(s) URL; got %q", c.Upstream.ProdURL)
	}

	// Candidate URLs are not validated here: a malformed one makes the
	// resolver fall back to production instead of aborting startup.
	for i, cand := range c.Upstream.Candidates {
		switch model.Label(strings.ToLower(cand.Label)) {
		case model.LabelDebug, model.LabelDev:
		default:
			return fmt.Errorf("upstream.candidates[%d].label must be one of: debug, dev; got %q", i, cand.Label)
		}
		if c.pointsAtSelf(cand.URL) {
			return fmt.Errorf("upstream.candidates[%d].url %q points at the debugger itself", i, cand.URL)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.ProbeTimeoutMS < 0 {
		return fmt.Errorf("upstream.probe_timeout_ms must be non-negative; got %d", c.Upstream.ProbeTimeoutMS)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	switch strings.ToLower(c.Display.Color) {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("display.color must be one of: auto, always, never; got %q", c.Display.Color)
	}
	switch strings.ToLower(c.Display.Output) {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("display.output must be one of: stdout, stderr; got %q", c.Display.Output)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// The metrics route shares the listener with the catch-all proxy route,
	// so it must live under the reserved prefix.
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, ControlPrefix+"/") {
		return fmt.Errorf("metrics.path must start with %q; got %q", ControlPrefix+"/", c.Metrics.Path)
	}
	if c.Metrics.Enabled {
		for _, reserved := range []string{HealthzPath, StatusPath} {
			if c.Metrics.Path == reserved {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", c.Metrics.Path, reserved)
			}
		}
	}

	return nil
}

// pointsAtSelf reports whether raw targets this process's own loopback listener.
func (c *Config) pointsAtSelf(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if port != strconv.Itoa(c.Server.Port) {
		return false
	}
	if u.Hostname() == "localhost" {
		return true
	}
	ip := net.ParseIP(u.Hostname())
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// Candidates returns the configured non-production candidates in priority order.
func (c *Config) Candidates() []model.Candidate {
	out := make([]model.Candidate, 0, len(c.Upstream.Candidates))
	for _, cand := range c.Upstream.Candidates {
		out = append(out, model.Candidate{
			Label: model.Label(strings.ToLower(cand.Label)),
			URL:   cand.URL,
		})
	}
	return out
}

// Production returns the production fallback candidate.
func (c *Config) Production() model.Candidate {
	return model.Candidate{Label: model.LabelProd, URL: c.Upstream.ProdURL}
}

// ProbeTimeout returns the per-candidate probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Upstream.ProbeTimeoutMS) * time.Millisecond
}

// UpstreamTimeout returns the overall upstream request timeout; zero means none.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
