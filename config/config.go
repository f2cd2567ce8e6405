/*
Package config loads application configuration.

PURPOSE:
  Reads settings from environment variables, with an optional .env or
  config.env file for local development. Environment variables win over
  file values; command-line flags in cmd/server win over both.

KEYS:
  APP_ENV     development | production (controls log output format)
  LOG_LEVEL   trace, debug, info, warn, error
  HTTP_HOST   Listen host (default 0.0.0.0)
  HTTP_PORT   Listen port (default 8080)
  DB_PATH     SQLite database path (default inventory.db, ":memory:" works)
*/
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config groups the application configuration.
type Config struct {
	App  AppConfig
	HTTP HTTPConfig
	DB   DBConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env      string // development, production
	LogLevel string // trace, debug, info, warn, error
}

// HTTPConfig holds the HTTP server settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DBConfig holds the SQLite settings.
type DBConfig struct {
	Path string
}

// Load reads configuration from environment variables and, if present,
// a .env / config.env file. Missing keys fall back to defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Optional config files; env vars take priority.
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.SetConfigFile("config.env")
	_ = v.MergeInConfig()

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DB_PATH", "inventory.db")

	return &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			Path: v.GetString("DB_PATH"),
		},
	}, nil
}
