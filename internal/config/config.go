package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
	Catalog     CatalogConfig `toml:"catalog"`
	Ritual      RitualConfig  `toml:"ritual"`
	Session     SessionConfig `toml:"session"`
	Export      ExportConfig  `toml:"export"`
	MCP         MCPConfig     `toml:"mcp"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// CatalogConfig locates the fortune catalog. An empty path uses the catalog
// compiled into the binary.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// RitualConfig holds the animation timings and confirmation thresholds of the
// divination ritual. Durations are Go duration strings ("2s", "1500ms").
type RitualConfig struct {
	ShakeMin          string  `toml:"shake_min"`
	ShakeMax          string  `toml:"shake_max"`
	Rise              string  `toml:"rise"`
	Throw             string  `toml:"throw"`
	Reveal            string  `toml:"reveal"`
	AcceptThreshold   float64 `toml:"accept_threshold"`
	LaughingThreshold float64 `toml:"laughing_threshold"`
	Seed              uint64  `toml:"seed"` // 0 = unseeded
}

// SessionConfig contains browser session settings.
type SessionConfig struct {
	TTL             string `toml:"ttl"`
	CleanupInterval string `toml:"cleanup_interval"`
	MaxSessions     int    `toml:"max_sessions"`
	CookieSecure    bool   `toml:"cookie_secure"`
}

// ExportConfig contains settings for the result image export.
type ExportConfig struct {
	Enabled    bool    `toml:"enabled"`
	ChromeURL  string  `toml:"chrome_url"` // remote DevTools endpoint; empty launches a local browser
	Timeout    string  `toml:"timeout"`
	Scale      float64 `toml:"scale"`
	Background string  `toml:"background"`
	CacheTTL   string  `toml:"cache_ttl"`
	CacheSize  int     `toml:"cache_size"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies LINGQIAN_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LINGQIAN_ENV"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("LINGQIAN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LINGQIAN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("LINGQIAN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LINGQIAN_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if path := os.Getenv("LINGQIAN_CATALOG_PATH"); path != "" {
		config.Catalog.Path = path
	}
	if seed := os.Getenv("LINGQIAN_RITUAL_SEED"); seed != "" {
		if s, err := strconv.ParseUint(seed, 10, 64); err == nil {
			config.Ritual.Seed = s
		}
	}
	if url := os.Getenv("LINGQIAN_EXPORT_CHROME_URL"); url != "" {
		config.Export.ChromeURL = url
	}
	if enabled := os.Getenv("LINGQIAN_EXPORT_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Export.Enabled = b
		}
	}
	if enabled := os.Getenv("LINGQIAN_MCP_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.MCP.Enabled = b
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host, catalogPath string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if catalogPath != "" {
		config.Catalog.Path = catalogPath
	}
}

// IsDevMode reports whether the service runs with environment = "dev".
func (c *Config) IsDevMode() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "dev")
}

// Validate returns a list of human-readable configuration problems.
func (c *Config) Validate() []string {
	var issues []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port must be between 1 and 65535 (got %d)", c.Server.Port))
	}

	durations := []struct {
		name  string
		value string
	}{
		{"ritual.shake_min", c.Ritual.ShakeMin},
		{"ritual.shake_max", c.Ritual.ShakeMax},
		{"ritual.rise", c.Ritual.Rise},
		{"ritual.throw", c.Ritual.Throw},
		{"ritual.reveal", c.Ritual.Reveal},
		{"session.ttl", c.Session.TTL},
		{"session.cleanup_interval", c.Session.CleanupInterval},
		{"export.timeout", c.Export.Timeout},
		{"export.cache_ttl", c.Export.CacheTTL},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s is not a valid duration: %q", d.name, d.value))
			continue
		}
		if parsed <= 0 {
			issues = append(issues, fmt.Sprintf("%s must be positive (got %s)", d.name, d.value))
		}
	}

	if c.Ritual.ShakeMinDuration() > c.Ritual.ShakeMaxDuration() {
		issues = append(issues, "ritual.shake_min must not exceed ritual.shake_max")
	}

	a, l := c.Ritual.AcceptThreshold, c.Ritual.LaughingThreshold
	if a <= 0 || a > 1 {
		issues = append(issues, fmt.Sprintf("ritual.accept_threshold must be in (0, 1] (got %g)", a))
	}
	if l < a || l > 1 {
		issues = append(issues, fmt.Sprintf("ritual.laughing_threshold must be in [accept_threshold, 1] (got %g)", l))
	}

	if c.Session.MaxSessions <= 0 {
		issues = append(issues, "session.max_sessions must be positive")
	}
	if c.Export.Scale <= 0 {
		issues = append(issues, "export.scale must be positive")
	}

	return issues
}

// parseDuration parses s, returning fallback when s is empty or invalid.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ShakeMinDuration returns the lower bound of the shake animation.
func (r RitualConfig) ShakeMinDuration() time.Duration { return parseDuration(r.ShakeMin, 2*time.Second) }

// ShakeMaxDuration returns the upper bound of the shake animation.
func (r RitualConfig) ShakeMaxDuration() time.Duration { return parseDuration(r.ShakeMax, 3*time.Second) }

// RiseDuration returns how long the drawn stick rises before confirmation.
func (r RitualConfig) RiseDuration() time.Duration {
	return parseDuration(r.Rise, 1500*time.Millisecond)
}

// ThrowDuration returns the length of the moon-block throw animation.
func (r RitualConfig) ThrowDuration() time.Duration { return parseDuration(r.Throw, time.Second) }

// RevealDuration returns how long the throw outcome is shown.
func (r RitualConfig) RevealDuration() time.Duration {
	return parseDuration(r.Reveal, 1200*time.Millisecond)
}

// TTLDuration returns the idle lifetime of a session.
func (s SessionConfig) TTLDuration() time.Duration { return parseDuration(s.TTL, 30*time.Minute) }

// CleanupIntervalDuration returns the janitor interval.
func (s SessionConfig) CleanupIntervalDuration() time.Duration {
	return parseDuration(s.CleanupInterval, time.Minute)
}

// TimeoutDuration returns the per-export browser timeout.
func (e ExportConfig) TimeoutDuration() time.Duration { return parseDuration(e.Timeout, 20*time.Second) }

// CacheTTLDuration returns how long exported images are kept.
func (e ExportConfig) CacheTTLDuration() time.Duration {
	return parseDuration(e.CacheTTL, 30*time.Minute)
}

// BaseURL returns the externally visible URL of the service.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}
