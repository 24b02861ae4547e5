package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Known backend types.
const (
	BackendEmbedded = "embedded"
	BackendRedis    = "redis"
)

// Config holds the searchmapd configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Search  SearchConfig  `yaml:"search"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	// Seed indexes the sample catalog at startup.
	Seed bool `yaml:"seed"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig declares the backends of the mapping. Each backend is a free-form
// property tree; "type" selects the implementation, "index_defaults" and
// "indexes.<name>" configure its indexes.
type SearchConfig struct {
	DefaultBackend  string                    `yaml:"default_backend"`
	StartTimeoutSec int                       `yaml:"start_timeout_sec"`
	Backends        map[string]map[string]any `yaml:"backends"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, completes and validates a YAML configuration.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values. Without any backend,
// an in-memory embedded backend named "default" is declared.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.StartTimeoutSec <= 0 {
		c.Search.StartTimeoutSec = 30
	}
	if len(c.Search.Backends) == 0 {
		c.Search.Backends = map[string]map[string]any{
			"default": {"type": BackendEmbedded},
		}
	}
	for _, props := range c.Search.Backends {
		if props != nil && props["type"] == nil {
			props["type"] = BackendEmbedded
		}
	}
	if c.Search.DefaultBackend == "" && len(c.Search.Backends) == 1 {
		for name := range c.Search.Backends {
			c.Search.DefaultBackend = name
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	names := make([]string, 0, len(c.Search.Backends))
	for name := range c.Search.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		props := c.Search.Backends[name]
		if props == nil {
			return fmt.Errorf("search.backends.%s is empty", name)
		}
		switch t := fmt.Sprint(props["type"]); t {
		case BackendEmbedded:
		case BackendRedis:
			if _, ok := props["addrs"]; !ok {
				return fmt.Errorf("search.backends.%s.addrs is required", name)
			}
		default:
			return fmt.Errorf("search.backends.%s.type must be %q or %q, got %q",
				name, BackendEmbedded, BackendRedis, t)
		}
	}
	if c.Search.DefaultBackend != "" {
		if _, ok := c.Search.Backends[c.Search.DefaultBackend]; !ok {
			return fmt.Errorf("search.default_backend %q is not declared", c.Search.DefaultBackend)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
