// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string `env:"APP_HOST" env-default:"0.0.0.0"`
	Port string `env:"APP_PORT" env-default:"8080"`
	Env  string `env:"APP_ENV" env-default:"development"` // "development", "production", "testing"

	// PostgreSQL connection
	DBHost     string `env:"POSTGRES_HOST" env-default:"localhost"`
	DBPort     string `env:"POSTGRES_PORT" env-default:"5432"`
	DBUser     string `env:"POSTGRES_USER" env-default:"quillpress"`
	DBPassword string `env:"POSTGRES_PASSWORD" env-default:"changeme"`
	DBName     string `env:"POSTGRES_DB" env-default:"quillpress"`

	// Valkey (Redis-compatible cache)
	ValkeyHost     string `env:"VALKEY_HOST" env-default:"localhost"`
	ValkeyPort     string `env:"VALKEY_PORT" env-default:"6379"`
	ValkeyPassword string `env:"VALKEY_PASSWORD"`
	ValkeyDB       int    `env:"VALKEY_DB" env-default:"0"`

	// Authentication
	JWTSecret  string        `env:"JWT_SECRET" env-default:"dev-secret-change-me"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" env-default:"24h"`
	BcryptCost int           `env:"BCRYPT_COST" env-default:"12"`
	LoginRate  float64       `env:"LOGIN_RATE" env-default:"0.2"` // attempts per second per identifier
	LoginBurst int           `env:"LOGIN_BURST" env-default:"5"`

	// Development seed
	AdminPassword string `env:"ADMIN_PASSWORD" env-default:"admin-changeme"`

	// Publishing
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" env-default:"1m"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// DevJWTSecret is the built-in signing key; it is rejected in production.
const DevJWTSecret = "dev-secret-change-me"

// minSecretLen is the shortest JWT secret accepted in production.
const minSecretLen = 32

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing in production mode.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", cfg.BcryptCost)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.JWTSecret == DevJWTSecret || len(cfg.JWTSecret) < minSecretLen {
			return nil, fmt.Errorf("JWT_SECRET must be set to at least %d bytes in production", minSecretLen)
		}
	}

	return &cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// ValkeyAddr returns the Valkey host:port.
func (c *Config) ValkeyAddr() string {
	return net.JoinHostPort(c.ValkeyHost, c.ValkeyPort)
}

// Addr returns the listen address of the ops server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}
