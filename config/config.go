// Package config loads server settings from the environment, an optional
// .env file and built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key: MOTOHUB_HTTP_ADDR, ...
const EnvPrefix = "MOTOHUB"

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr    string
	Store       string
	SQLitePath  string
	DatabaseURL string

	LogLevel  string
	Env       string
	SentryDSN string
	Release   string

	ArrearsInterval time.Duration
	AllowedOrigins  []string
	Timezone        string
}

func defaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("store", StoreSQLite)
	v.SetDefault("sqlite_path", "motohub.db")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("env", "dev")
	v.SetDefault("sentry_dsn", "")
	v.SetDefault("release", "dev")
	v.SetDefault("arrears_interval", time.Hour)
	v.SetDefault("allowed_origins", "http://localhost:5173")
	v.SetDefault("timezone", "UTC")
}

// Load reads configuration. envFile is loaded into the process
// environment when it exists; a missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", envFile, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:        v.GetString("http_addr"),
		Store:           strings.ToLower(v.GetString("store")),
		SQLitePath:      v.GetString("sqlite_path"),
		DatabaseURL:     v.GetString("database_url"),
		LogLevel:        v.GetString("log_level"),
		Env:             strings.ToLower(v.GetString("env")),
		SentryDSN:       v.GetString("sentry_dsn"),
		Release:         v.GetString("release"),
		ArrearsInterval: v.GetDuration("arrears_interval"),
		AllowedOrigins:  splitList(v.GetString("allowed_origins")),
		Timezone:        v.GetString("timezone"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: %s_SQLITE_PATH is required for the sqlite store", EnvPrefix)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: %s_DATABASE_URL is required for the postgres store", EnvPrefix)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q (want sqlite, postgres or memory)", c.Store)
	}
	if c.ArrearsInterval < 0 {
		return fmt.Errorf("config: arrears interval must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. The current year is read in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
