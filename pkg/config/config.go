package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for queryweaver.
// Configuration comes from config.yaml with environment variable overrides.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Metadata store (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Warehouse read path (separate connection from the metadata store)
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Completion service (OpenAI-compatible endpoint)
	Completion CompletionConfig `yaml:"completion"`
}

// DatabaseConfig holds metadata store connection configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"queryweaver"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"queryweaver"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// WarehouseConfig holds the read-only warehouse connection and query policy.
type WarehouseConfig struct {
	// URL is the full connection string for the warehouse. Secret - env only.
	URL string `yaml:"-" env:"WAREHOUSE_URL"`
	// QueryTimeoutSeconds bounds each warehouse query.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"WAREHOUSE_QUERY_TIMEOUT_SECONDS" env-default:"30"`
	// DefaultMaxRows is the row ceiling applied when callers do not supply one.
	DefaultMaxRows int `yaml:"default_max_rows" env:"WAREHOUSE_DEFAULT_MAX_ROWS" env-default:"1000"`
	// MaxRowsCeiling is the hard upper bound on any caller-supplied row limit.
	MaxRowsCeiling int `yaml:"max_rows_ceiling" env:"WAREHOUSE_MAX_ROWS_CEILING" env-default:"10000"`
}

// CompletionConfig holds completion service settings.
// Model, temperature and max tokens act as defaults; an active prompt
// template in the metadata store overrides them per call.
type CompletionConfig struct {
	Endpoint       string  `yaml:"endpoint" env:"COMPLETION_ENDPOINT" env-default:"https://api.openai.com/v1"`
	APIKey         string  `yaml:"-" env:"COMPLETION_API_KEY"` // Secret - not in YAML
	Model          string  `yaml:"model" env:"COMPLETION_MODEL" env-default:"gpt-4o-mini"`
	Temperature    float64 `yaml:"temperature" env:"COMPLETION_TEMPERATURE" env-default:"0.1"`
	MaxTokens      int     `yaml:"max_tokens" env:"COMPLETION_MAX_TOKENS" env-default:"1200"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"COMPLETION_TIMEOUT_SECONDS" env-default:"45"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Warehouse.DefaultMaxRows < 1 {
		return fmt.Errorf("warehouse default_max_rows must be positive")
	}
	if c.Warehouse.MaxRowsCeiling < c.Warehouse.DefaultMaxRows {
		return fmt.Errorf("warehouse max_rows_ceiling must be >= default_max_rows")
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		return fmt.Errorf("completion temperature must be between 0 and 2")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string for the metadata store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// QueryTimeout returns the warehouse query timeout as a duration.
func (c *WarehouseConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// Timeout returns the completion call timeout as a duration.
func (c *CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
