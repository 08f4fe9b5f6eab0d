// Package config provides configuration management for the gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single immutable configuration record assembled at startup.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Schema     SchemaConfig     `yaml:"schema"`
	Pagination PaginationConfig `yaml:"pagination"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`

	// ExposeDBErrors adds native error detail and constraint names to error
	// responses.
	ExposeDBErrors bool `yaml:"expose_db_errors"`
}

// DatabaseConfig holds connection settings for the primary pool and the
// optional read replica pool.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	ReadURL         string `yaml:"read_url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
	// StatementTimeout bounds every statement; 30s unless overridden.
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	DocsEnabled  bool   `yaml:"docs_enabled"`
	// CORSOrigins is "true" (allow all), "false"/"" (disabled), or a CSV
	// origin list.
	CORSOrigins string `yaml:"cors_origins"`
}

// SchemaConfig controls which parts of the catalog are exposed.
type SchemaConfig struct {
	IncludeNamespaces []string `yaml:"include_namespaces"`
	ExcludeNamespaces []string `yaml:"exclude_namespaces"`
	// ExcludeTables holds namespace.table full identifiers.
	ExcludeTables []string `yaml:"exclude_tables"`
}

// PaginationConfig holds the list and bulk-write caps.
type PaginationConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	MaxBulkRows     int `yaml:"max_bulk_rows"`
}

// AuthConfig holds the credential settings.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
	// File enables rotated file output; empty logs to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:     25,
			MaxIdleConns:     5,
			ConnMaxLifetime:  300,
			StatementTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			MaxBodyBytes: 1 << 20,
		},
		Pagination: PaginationConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			MaxBulkRows:     1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override file configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is from command-line argument, user-controlled input is expected
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PGCRUD_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("PGCRUD_DATABASE_READ_URL"); v != "" {
		c.Database.ReadURL = v
	}
	if v := os.Getenv("PGCRUD_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PGCRUD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PGCRUD_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Server.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("PGCRUD_DOCS_ENABLED"); v != "" {
		c.Server.DocsEnabled = isTruthy(v)
	}
	if v := os.Getenv("PGCRUD_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = v
	}
	if v := os.Getenv("PGCRUD_INCLUDE_NAMESPACES"); v != "" {
		c.Schema.IncludeNamespaces = splitCSV(v)
	}
	if v := os.Getenv("PGCRUD_EXCLUDE_NAMESPACES"); v != "" {
		c.Schema.ExcludeNamespaces = splitCSV(v)
	}
	if v := os.Getenv("PGCRUD_EXCLUDE_TABLES"); v != "" {
		c.Schema.ExcludeTables = splitCSV(v)
	}
	if v := os.Getenv("PGCRUD_DEFAULT_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pagination.DefaultPageSize = n
		}
	}
	if v := os.Getenv("PGCRUD_MAX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pagination.MaxPageSize = n
		}
	}
	if v := os.Getenv("PGCRUD_MAX_BULK_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pagination.MaxBulkRows = n
		}
	}
	if v := os.Getenv("PGCRUD_AUTH_ENABLED"); v != "" {
		c.Auth.Enabled = isTruthy(v)
	}
	if v := os.Getenv("PGCRUD_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("PGCRUD_EXPOSE_DB_ERRORS"); v != "" {
		c.ExposeDBErrors = isTruthy(v)
	}
	if v := os.Getenv("PGCRUD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PGCRUD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PGCRUD_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required when auth is enabled")
	}
	if c.Pagination.DefaultPageSize < 1 {
		return fmt.Errorf("default page size must be at least 1")
	}
	if c.Pagination.MaxPageSize < 1 {
		return fmt.Errorf("max page size must be at least 1")
	}
	if c.Pagination.MaxBulkRows < 1 {
		return fmt.Errorf("max bulk rows must be at least 1")
	}
	return nil
}

// Address returns the server address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DatabaseDSN returns the primary connection string, with any jdbc: prefix
// stripped.
func (c *Config) DatabaseDSN() string {
	return StripJDBC(c.Database.URL)
}

// ReadDSN returns the replica connection string, empty when no replica is
// configured.
func (c *Config) ReadDSN() string {
	return StripJDBC(c.Database.ReadURL)
}

// StripJDBC removes a jdbc: URL prefix, which some deployment tools prepend.
func StripJDBC(url string) string {
	return strings.TrimPrefix(url, "jdbc:")
}

// CORSAllowedOrigins interprets the cors_origins option: nil disables CORS,
// ["*"] allows every origin, anything else is the literal origin list.
func (c *Config) CORSAllowedOrigins() []string {
	switch strings.ToLower(strings.TrimSpace(c.Server.CORSOrigins)) {
	case "", "false":
		return nil
	case "true":
		return []string{"*"}
	default:
		return splitCSV(c.Server.CORSOrigins)
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isTruthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
