package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the linkage API configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Index   IndexConfig   `yaml:"index"`
	Queue   QueueConfig   `yaml:"queue"`
	Bulk    BulkConfig    `yaml:"bulk"`
	Notify  NotifyConfig  `yaml:"notify"`
	RefData RefDataConfig `yaml:"refdata"`
	Logging LoggingConfig `yaml:"logging"`
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

// IndexConfig holds settings for the full-text registry index backend.
type IndexConfig struct {
	BaseURL         string `yaml:"base_url"`
	Name            string `yaml:"name"` // physical index name
	TimeoutSec      int    `yaml:"timeout_sec"`
	DefaultPageSize int    `yaml:"default_page_size"`
	MaxPageSize     int    `yaml:"max_page_size"`
	ScrollKeepAlive string `yaml:"scroll_keep_alive"` // e.g. "1m"
}

// QueueConfig holds work queue settings.
type QueueConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	JobConcurrency   int      `yaml:"job_concurrency"`   // whole-job workers
	ChunkConcurrency int      `yaml:"chunk_concurrency"` // per-chunk workers
}

// BulkConfig holds bulk reconciliation settings.
type BulkConfig struct {
	DataDir          string `yaml:"data_dir"`
	EncryptionKey    string `yaml:"encryption_key"` // 32 raw or 64 hex characters
	BatchSize        int    `yaml:"batch_size"`
	MaxInFlight      int    `yaml:"max_in_flight"` // concurrent batches per job
	CandidateNumber  int    `yaml:"candidate_number"`
	RetentionHours   int    `yaml:"retention_hours"`
	CancelGraceSec   int    `yaml:"cancel_grace_sec"`
	UnrestrictedUser string `yaml:"unrestricted_user"` // exempt from admission control
}

// NotifyConfig holds outbound notification settings.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"` // empty disables notifications
	TimeoutSec int    `yaml:"timeout_sec"`
}

// RefDataConfig holds reference dictionary locations.
type RefDataConfig struct {
	CityFile string `yaml:"city_file"` // CSV of city,insee,department,country,lat,lon
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

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

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Index.Name == "" {
		c.Index.Name = "registry"
	}
	if c.Index.TimeoutSec <= 0 {
		c.Index.TimeoutSec = 30
	}
	if c.Index.DefaultPageSize <= 0 {
		c.Index.DefaultPageSize = 20
	}
	if c.Index.MaxPageSize <= 0 {
		c.Index.MaxPageSize = 1000
	}
	if c.Index.ScrollKeepAlive == "" {
		c.Index.ScrollKeepAlive = "1m"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.JobConcurrency <= 0 {
		c.Queue.JobConcurrency = 2
	}
	if c.Queue.ChunkConcurrency <= 0 {
		c.Queue.ChunkConcurrency = 4
	}
	if c.Bulk.DataDir == "" {
		c.Bulk.DataDir = "data"
	}
	if c.Bulk.BatchSize <= 0 {
		c.Bulk.BatchSize = 50
	}
	if c.Bulk.MaxInFlight <= 0 {
		c.Bulk.MaxInFlight = 4
	}
	if c.Bulk.CandidateNumber <= 0 {
		c.Bulk.CandidateNumber = 1
	}
	if c.Bulk.RetentionHours <= 0 {
		c.Bulk.RetentionHours = 36
	}
	if c.Bulk.CancelGraceSec <= 0 {
		c.Bulk.CancelGraceSec = 5
	}
	if c.Notify.TimeoutSec <= 0 {
		c.Notify.TimeoutSec = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Index.BaseURL == "" {
		return fmt.Errorf("index.base_url is required")
	}
	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if len(c.Queue.Addrs) == 0 {
			return fmt.Errorf("queue.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("queue.driver must be \"memory\" or \"redis\", got %q", c.Queue.Driver)
	}
	if n := len(c.Bulk.EncryptionKey); n != 0 && n != 32 && n != 64 {
		return fmt.Errorf("bulk.encryption_key must be 32 raw or 64 hex characters, got %d", n)
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

	// 3. Fallback to ./config/
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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
