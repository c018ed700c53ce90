// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. A .env file (optional, merged into the process environment)
//  2. YAML file (config.yaml), with ${VAR} expansion
//  3. Environment variables (fallback for anything the file leaves out)
//
// Example usage:
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.LoadOrEnv("config.yaml")
//	store := cfg.Storage.Driver
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Booking       BookingConfig       `yaml:"booking"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig selects the persistence backend. Postgres holds the
// capacity ledger only; catalog and bookings then live in SQLite.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`
}

// RedisConfig enables the shared quote store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RabbitMQConfig enables booking events when URL is set.
type RabbitMQConfig struct {
	URL string `yaml:"url"`
}

// BookingConfig tunes quoting and the reconciliation scheduler. A zero
// ReconcileInterval disables the scheduler.
type BookingConfig struct {
	QuoteTTL          time.Duration `yaml:"quote_ttl"`
	ShoulderPolicy    string        `yaml:"shoulder_policy"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileRepair   bool          `yaml:"reconcile_repair"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadDotEnv merges .env files into the environment. Missing files are
// not an error; variables already set in the process win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file on top of the environment defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${DATABASE_URL})
	expanded := os.ExpandEnv(string(data))

	cfg := LoadFromEnv()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("ENGINE_PORT", 8080),
		},
		Storage: StorageConfig{
			Driver:       getEnv("ENGINE_STORE", DriverSQLite),
			DatabasePath: getEnv("ENGINE_DB_PATH", "allocation.db"),
			DatabaseURL:  os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL: os.Getenv("RABBITMQ_URL"),
		},
		Booking: BookingConfig{
			QuoteTTL:          getEnvDuration("QUOTE_TTL", 15*time.Minute),
			ShoulderPolicy:    getEnv("SHOULDER_POLICY", "fallback"),
			ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Hour),
			ReconcileRepair:   getEnvBool("RECONCILE_REPAIR", false),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
}

// LoadOrEnv loads the file when it exists and falls back to the
// environment otherwise. A file that exists but is invalid is an error.
func LoadOrEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = LoadFromEnv()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("storage.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Booking.QuoteTTL <= 0 {
		return fmt.Errorf("quote_ttl must be positive, got %s", c.Booking.QuoteTTL)
	}
	if c.Booking.ReconcileInterval < 0 {
		return fmt.Errorf("reconcile_interval must not be negative, got %s", c.Booking.ReconcileInterval)
	}
	switch c.Booking.ShoulderPolicy {
	case "", "fallback", "strict":
	default:
		return fmt.Errorf("unknown shoulder policy %q", c.Booking.ShoulderPolicy)
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
