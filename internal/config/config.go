// Package config loads the two layers of configuration the session
// orchestrator needs: process-level ambient config (DB/Redis DSNs, log
// level, ports) loaded from the environment, and the per-run SessionConfig
// (spec.md §6.1) loaded from a YAML file at session start.
//
// Built on a struct-of-structs config layout and env-var loading helpers,
// trimmed to the collaborators this orchestrator actually wires (database,
// redis, logging) plus the control-surface port, per SPEC_FULL.md §6.1a.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration, loaded once at startup.
type Config struct {
	Environment string
	LogLevel    string
	Database    DatabaseConfig
	Redis       RedisConfig
	Control     ControlConfig
}

// DatabaseConfig configures the Postgres/TimescaleDB connection, consumed by
// internal/historicalrepo.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis connection, consumed by
// internal/livestream and the ToplistScanner.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// ControlConfig configures cmd/sessiond's HTTP control surface (spec.md
// §6.5's pause/resume/stop/status, exposed over HTTP instead of a CLI per
// SPEC_FULL.md §6.5a).
type ControlConfig struct {
	Port            int
	HealthCheckPort int
}

// Load reads process-level config from the environment, loading a .env file
// first if one is present (ignoring its absence).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "session_orchestrator"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Control: ControlConfig{
			Port:            getEnvAsInt("SESSIOND_PORT", 8090),
			HealthCheckPort: getEnvAsInt("SESSIOND_HEALTH_PORT", 8091),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the process-level config is usable.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
