package config

import (
	"errors"
	"fmt"
	"strings"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default API settings.
const (
	DefaultAPIListen         = ":9090"
	DefaultSQLitePath        = "runqc.db"
	DefaultPostgresPort      = 5432
	DefaultRequestsPerMinute = 120
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server APIServerConfig `yaml:"server" mapstructure:"server"`
	Auth   APIAuthConfig   `yaml:"auth" mapstructure:"auth"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Public  RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	AnonymousRead bool            `yaml:"anonymous_read" mapstructure:"anonymous_read"`
	Basic         BasicAuthConfig `yaml:"basic,omitempty" mapstructure:"basic"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user. Password may be plain text or a
// bcrypt hash ("$2a$", "$2b$" or "$2y$" prefix).
type BasicAuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// IsHashed reports whether the configured password is a bcrypt hash.
func (u BasicAuthUser) IsHashed() bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(u.Password, prefix) {
			return true
		}
	}

	return false
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

func (c *APIConfig) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultAPIListen
	}

	if c.Server.RateLimit.Public.RequestsPerMinute <= 0 {
		c.Server.RateLimit.Public.RequestsPerMinute = DefaultRequestsPerMinute
	}
}

// Validate checks the API section. It is only enforced by the api command.
func (c *APIConfig) Validate() error {
	if c.Auth.Basic.Enabled && len(c.Auth.Basic.Users) == 0 {
		return errors.New("api.auth.basic: at least one user is required")
	}

	for i, u := range c.Auth.Basic.Users {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf("api.auth.basic.users[%d]: username and password are required", i)
		}
	}

	if !c.Auth.AnonymousRead && !c.Auth.Basic.Enabled {
		return errors.New("api.auth: anonymous_read is disabled but no auth method is enabled")
	}

	return nil
}

func (c *DatabaseConfig) applyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}

	if c.Driver == DriverSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = DefaultSQLitePath
	}

	if c.Driver == DriverPostgres && c.Postgres.Port == 0 {
		c.Postgres.Port = DefaultPostgresPort
	}
}

// Validate checks the database settings.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return errors.New("database.sqlite.path is required")
		}
	case DriverPostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return errors.New("database.postgres host and database are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	return nil
}
