// ABOUTME: Configuration loading and parsing for agentdesk
// ABOUTME: Reads YAML or TOML with environment variable expansion, duration parsing, and defaults

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/agentdesk/internal/auth"
)

// Environment variables consulted by Path and Load.
const (
	EnvConfigPath = "AGENTDESK_CONFIG"
	EnvDBPath     = "AGENTDESK_DB_PATH"
)

// Config represents the complete agentdesk configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Agents    AgentsConfig    `yaml:"agents" toml:"agents"`
	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LLMConfig selects the completion backend used by the built-in agents
type LLMConfig struct {
	Provider string `yaml:"provider" toml:"provider"` // "openai" or "echo"
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	Model    string `yaml:"model" toml:"model"`
}

// AgentsConfig holds agent invocation settings
type AgentsConfig struct {
	InvokeTimeout time.Duration `yaml:"-" toml:"-"`
	Workers       int           `yaml:"workers" toml:"workers"`
	HistoryWindow int           `yaml:"history_window" toml:"history_window"`

	InvokeTimeoutRaw string `yaml:"invoke_timeout" toml:"invoke_timeout"`
}

// ProvidersConfig holds third-party data API settings
type ProvidersConfig struct {
	Weather ProviderConfig `yaml:"weather" toml:"weather"`
	Windy   ProviderConfig `yaml:"windy" toml:"windy"`
	OpenSky OpenSkyConfig  `yaml:"opensky" toml:"opensky"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// ProviderConfig is a keyed HTTP API
type ProviderConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	APIKey  string `yaml:"api_key" toml:"api_key"`
}

// OpenSkyConfig holds OpenSky Network settings. Credentials are optional.
type OpenSkyConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	Username          string  `yaml:"username" toml:"username"`
	Password          string  `yaml:"password" toml:"password"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// DedupeConfig controls the response replay cache
type DedupeConfig struct {
	Enabled    bool          `yaml:"enabled" toml:"enabled"`
	TTL        time.Duration `yaml:"-" toml:"-"`
	TTLRaw     string        `yaml:"ttl" toml:"ttl"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	cfg.ApplyDefaults()
	return cfg
}

// Path returns the config file location.
// Priority: AGENTDESK_CONFIG > $XDG_CONFIG_HOME/agentdesk/agentdesk.yaml > ~/.config/agentdesk/agentdesk.yaml
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "agentdesk.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "agentdesk", "agentdesk.yaml")
}

// DefaultDBPath is the database location used when none is configured.
func DefaultDBPath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "agentdesk.db"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "agentdesk", "agentdesk.db")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded first, and
// AGENTDESK_DB_PATH overrides database.path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes raw config content. name selects the format by extension.
func Parse(name string, data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if p := os.Getenv(EnvDBPath); p != "" {
		cfg.Database.Path = p
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.HTTPAddr, "0.0.0.0:8080")
	setDefault(&c.Database.Path, DefaultDBPath())
	c.Database.Path = expandHome(c.Database.Path)

	setDefault(&c.LLM.Provider, "openai")
	setDefault(&c.LLM.Model, "gpt-4o")

	if c.Agents.InvokeTimeout == 0 {
		c.Agents.InvokeTimeout = 60 * time.Second
	}
	if c.Agents.Workers == 0 {
		c.Agents.Workers = 8
	}

	if c.Providers.Timeout == 0 {
		c.Providers.Timeout = 15 * time.Second
	}
	if c.Providers.OpenSky.RequestsPerSecond == 0 {
		c.Providers.OpenSky.RequestsPerSecond = 1
	}

	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 5 * time.Minute
	}
	if c.Dedupe.MaxEntries == 0 {
		c.Dedupe.MaxEntries = 10000
	}

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "text")
	setDefault(&c.Metrics.Path, "/metrics")
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", auth.MinSecretLength)
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
			return fmt.Errorf("llm.api_key is required for the openai provider (or set llm.base_url for a compatible server)")
		}
	case "echo":
	default:
		return fmt.Errorf("llm.provider must be openai or echo, got %q", c.LLM.Provider)
	}

	if c.Agents.InvokeTimeout < 0 {
		return fmt.Errorf("agents.invoke_timeout must be positive")
	}
	if c.Agents.Workers < 1 {
		return fmt.Errorf("agents.workers must be at least 1")
	}
	if c.Agents.HistoryWindow < 0 {
		return fmt.Errorf("agents.history_window must be 0 (unbounded) or positive")
	}
	if c.Providers.OpenSky.RequestsPerSecond < 0 {
		return fmt.Errorf("providers.opensky.requests_per_second must not be negative")
	}
	if c.Dedupe.Enabled && c.Dedupe.MaxEntries < 1 {
		return fmt.Errorf("dedupe.max_entries must be at least 1")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"agents.invoke_timeout", cfg.Agents.InvokeTimeoutRaw, &cfg.Agents.InvokeTimeout},
		{"providers.timeout", cfg.Providers.TimeoutRaw, &cfg.Providers.Timeout},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}

// ParseLevel maps logging.level to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", level)
	}
}
