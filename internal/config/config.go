// Package config loads the coordinator configuration from an optional yaml
// file with environment overrides for deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Admin  AdminConfig  `yaml:"admin"`
	Store  StoreConfig  `yaml:"store"`
	Signal SignalConfig `yaml:"signal"`
	NATS   NATSConfig   `yaml:"nats"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StoreConfig selects the durable store backend: memory, file, or postgres.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	File     FileConfig     `yaml:"file"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type SignalConfig struct {
	UnlockAfterSeconds int `yaml:"unlock_after_seconds"`
}

// UnlockAfter returns the configured signal expiry as a duration.
func (c SignalConfig) UnlockAfter() time.Duration {
	return time.Duration(c.UnlockAfterSeconds) * time.Second
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file and no env overrides
// are present.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Admin:  AdminConfig{Username: "Admin", Password: "Administrator"},
		Store: StoreConfig{
			Backend: "file",
			File:    FileConfig{Path: "playerdata.json"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "postgres",
				Database: "podium",
				SSLMode:  "disable",
			},
		},
		Signal: SignalConfig{UnlockAfterSeconds: 10},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "podium.session",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.Server.Addr = getEnv("PODIUM_ADDR", cfg.Server.Addr)
	cfg.Admin.Username = getEnv("PODIUM_ADMIN_USER", cfg.Admin.Username)
	cfg.Admin.Password = getEnv("PODIUM_ADMIN_PASSWORD", cfg.Admin.Password)
	cfg.Store.Backend = getEnv("PODIUM_STORE", cfg.Store.Backend)
	cfg.Store.File.Path = getEnv("PODIUM_STORE_FILE", cfg.Store.File.Path)
	cfg.Store.Postgres.Host = getEnv("DB_HOST", cfg.Store.Postgres.Host)
	cfg.Store.Postgres.Port = getEnvAsInt("DB_PORT", cfg.Store.Postgres.Port)
	cfg.Store.Postgres.User = getEnv("DB_USER", cfg.Store.Postgres.User)
	cfg.Store.Postgres.Password = getEnv("DB_PASSWORD", cfg.Store.Postgres.Password)
	cfg.Store.Postgres.Database = getEnv("DB_NAME", cfg.Store.Postgres.Database)
	cfg.Store.Postgres.SSLMode = getEnv("DB_SSLMODE", cfg.Store.Postgres.SSLMode)
	cfg.Signal.UnlockAfterSeconds = getEnvAsInt("PODIUM_SIGNAL_UNLOCK_SECONDS", cfg.Signal.UnlockAfterSeconds)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Log.Level = getEnv("PODIUM_LOG_LEVEL", cfg.Log.Level)
	if v := os.Getenv("PODIUM_NATS_ENABLED"); v != "" {
		cfg.NATS.Enabled = v == "true" || v == "1"
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
