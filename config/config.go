// Package config loads runtime settings for the server and p4pctl.
//
// Precedence, lowest first: defaults, config file (YAML), .env file,
// environment (P4P_ prefix, dots become underscores: P4P_STORE_DSN).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fieldcrew/p4p-engine/p4p"
)

// Config holds all configuration values for the application.
type Config struct {
	HTTP   HTTPConfig
	Store  StoreConfig
	Log    LogConfig
	Floor  FloorConfig
	Recalc RecalcConfig
}

type HTTPConfig struct {
	Port           int
	AllowedOrigins []string
}

type StoreConfig struct {
	// sqlite, postgres or memory
	Driver string
	// File path for sqlite, connection URL for postgres
	DSN string
}

type LogConfig struct {
	Level  string
	Format string
}

// FloorConfig selects where the wage floor comes from.
type FloorConfig struct {
	Source p4p.FloorSource
}

type RecalcConfig struct {
	Enabled     bool
	Interval    time.Duration
	Concurrency int
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "p4p.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("floor.source", string(p4p.FloorConfiguration))
	v.SetDefault("recalc.enabled", true)
	v.SetDefault("recalc.interval", "1h")
	v.SetDefault("recalc.concurrency", 4)
}

// NewViper returns a viper instance with defaults and env binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("P4P")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional .env in the working directory, the optional YAML
// file at path, and the environment.
func Load(path string) (*Config, error) {
	return LoadViper(NewViper(), path)
}

// LoadViper is Load on a caller-built viper, for callers that bind flags.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:           v.GetInt("http.port"),
			AllowedOrigins: v.GetStringSlice("http.allowed_origins"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
			DSN:    v.GetString("store.dsn"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Recalc: RecalcConfig{
			Enabled:     v.GetBool("recalc.enabled"),
			Interval:    v.GetDuration("recalc.interval"),
			Concurrency: v.GetInt("recalc.concurrency"),
		},
	}
	source, err := p4p.ParseFloorSource(strings.ToLower(v.GetString("floor.source")))
	if err != nil {
		return nil, fmt.Errorf("invalid floor.source: %w", err)
	}
	cfg.Floor.Source = source

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port: %d", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s (env: P4P_STORE_DSN)", c.Store.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store.driver: %q", c.Store.Driver)
	}
	if _, err := p4p.ParseFloorSource(string(c.Floor.Source)); err != nil {
		return fmt.Errorf("invalid floor.source: %w", err)
	}
	if c.Recalc.Enabled && c.Recalc.Interval <= 0 {
		return fmt.Errorf("invalid recalc.interval: %v", c.Recalc.Interval)
	}
	if c.Recalc.Concurrency < 1 {
		return fmt.Errorf("invalid recalc.concurrency: %d", c.Recalc.Concurrency)
	}
	return nil
}

// WageFloor is the floor policy handed to p4p.NewService.
func (c *Config) WageFloor() p4p.WageFloor {
	return p4p.WageFloor{Source: c.Floor.Source}
}
