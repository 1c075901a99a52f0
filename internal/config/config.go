// Package config provides centralized configuration management for the importer.
// Process settings are loaded from environment variables with sensible defaults
// and validated on startup to fail fast on misconfiguration. Policy and table
// metadata settings live in a YAML file (see policies.go).
package config

import "time"

// Config holds all process configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// Schema is the database schema holding the SEAD tables (default: public)
	Schema string `env:"DB_SCHEMA" default:"public"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds submission processing settings.
type ImportConfig struct {
	// InputDir is the directory holding one CSV file per submission sheet
	InputDir string `env:"IMPORT_INPUT_DIR"`

	// OutputDir receives the exported wire-format files (default: output)
	OutputDir string `env:"EXPORT_OUTPUT_DIR" default:"output"`

	// Basename prefixes the four exported files (default: submission)
	Basename string `env:"EXPORT_BASENAME" default:"submission"`

	// Tables restricts the export to a comma-separated list of table names
	Tables []string `env:"EXPORT_TABLES"`

	// PolicyFile is the YAML file with policy and table metadata settings
	PolicyFile string `env:"POLICY_CONFIG"`

	// Timeout is the maximum duration for one import run (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or auto (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
