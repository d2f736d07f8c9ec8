package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Cache      CacheConfig      `yaml:"cache"`
	Remote     RemoteConfig     `yaml:"remote"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Search     SearchConfig     `yaml:"search"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// CacheConfig represents the local cache tiers
type CacheConfig struct {
	Root            string                     `yaml:"root"`
	DefaultTTL      time.Duration              `yaml:"default_ttl"`
	MaxMemory       string                     `yaml:"max_memory"`
	MinPayloadBytes int                        `yaml:"min_payload_bytes"`
	LockTimeout     time.Duration              `yaml:"lock_timeout"`
	StaleLockAge    time.Duration              `yaml:"stale_lock_age"`
	Namespaces      map[string]NamespaceConfig `yaml:"namespaces"`
}

// NamespaceConfig represents per-namespace overrides. Each namespace maps to
// one cache instance with its own disk prefix and result-format version.
type NamespaceConfig struct {
	Version string        `yaml:"version"`
	TTL     time.Duration `yaml:"ttl"`
}

// RemoteConfig represents the shared object-store tier
type RemoteConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Region         string        `yaml:"region"`
	Bucket         string        `yaml:"bucket"`
	Endpoint       string        `yaml:"endpoint"`
	ForcePathStyle bool          `yaml:"force_path_style"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// ProvidersConfig represents the upstream metadata providers
type ProvidersConfig struct {
	Endpoints map[string]ProviderConfig `yaml:"endpoints"`
	UserAgent string                    `yaml:"user_agent"`
}

// ProviderConfig represents a single provider endpoint
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SearchConfig represents the search index writer
type SearchConfig struct {
	Index     string        `yaml:"index"`
	BatchSize int           `yaml:"batch_size"`
	BuildTTL  time.Duration `yaml:"build_ttl"`
}

// MonitoringConfig represents metrics settings
type MonitoringConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "INFO",
			LogFile:  "",
		},
		Cache: CacheConfig{
			Root:            "/var/cache/strata",
			DefaultTTL:      time.Hour,
			MaxMemory:       "256MB",
			MinPayloadBytes: 2,
			LockTimeout:     3 * time.Second,
			StaleLockAge:    5 * time.Second,
			Namespaces: map[string]NamespaceConfig{
				"titles":  {Version: "v1", TTL: time.Hour},
				"artists": {Version: "v1", TTL: time.Hour},
				"search":  {Version: "v1", TTL: 24 * time.Hour},
			},
		},
		Remote: RemoteConfig{
			Enabled:        false,
			Region:         "us-east-1",
			Bucket:         "",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
		},
		Providers: ProvidersConfig{
			Endpoints: map[string]ProviderConfig{},
			UserAgent: "strata/1.0",
		},
		Search: SearchConfig{
			Index:     "media",
			BatchSize: 100,
			BuildTTL:  24 * time.Hour,
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: true,
			MetricsPort:    9095,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("STRATA_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("STRATA_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}

	if val := os.Getenv("STRATA_CACHE_ROOT"); val != "" {
		c.Cache.Root = val
	}
	if val := os.Getenv("STRATA_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.DefaultTTL = duration
		}
	}
	if val := os.Getenv("STRATA_CACHE_MAX_MEMORY"); val != "" {
		c.Cache.MaxMemory = val
	}

	if val := os.Getenv("STRATA_REMOTE_ENABLED"); val != "" {
		c.Remote.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("STRATA_REMOTE_REGION"); val != "" {
		c.Remote.Region = val
	}
	if val := os.Getenv("STRATA_REMOTE_BUCKET"); val != "" {
		c.Remote.Bucket = val
	}
	if val := os.Getenv("STRATA_REMOTE_ENDPOINT"); val != "" {
		c.Remote.Endpoint = val
	}

	if val := os.Getenv("STRATA_METRICS_ENABLED"); val != "" {
		c.Monitoring.MetricsEnabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("STRATA_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.MetricsPort = port
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Cache.Root == "" {
		return fmt.Errorf("cache root must not be empty")
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be greater than 0")
	}
	if _, err := ParseSize(c.Cache.MaxMemory); err != nil {
		return fmt.Errorf("invalid max_memory: %w", err)
	}
	for name, ns := range c.Cache.Namespaces {
		if ns.Version == "" {
			return fmt.Errorf("namespace %s: version must not be empty", name)
		}
	}

	if c.Remote.Enabled {
		if c.Remote.Bucket == "" {
			return fmt.Errorf("remote bucket must not be empty when the remote tier is enabled")
		}
		if c.Remote.Region == "" {
			return fmt.Errorf("remote region must not be empty when the remote tier is enabled")
		}
	}

	if c.Search.BatchSize <= 0 {
		return fmt.Errorf("search batch_size must be greater than 0")
	}

	return nil
}

// ParseSize converts a human size string such as "256MB" into bytes.
// Plain numbers are interpreted literally.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	units := map[string]int64{
		"KB": 1024,
		"MB": 1024 * 1024,
		"GB": 1024 * 1024 * 1024,
		"B":  1,
	}

	upper := strings.ToUpper(sizeStr)
	for _, unit := range []string{"KB", "MB", "GB", "B"} {
		if strings.HasSuffix(upper, unit) {
			numStr := strings.TrimSuffix(upper, unit)
			if val, err := strconv.ParseFloat(numStr, 64); err == nil {
				return int64(val * float64(units[unit])), nil
			}
		}
	}

	return 0, fmt.Errorf("invalid size format: %s", sizeStr)
}
