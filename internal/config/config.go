// Package config provides Viper-based configuration loading for the port town simulator.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SimulationConfig holds tick driver settings.
type SimulationConfig struct {
	// TickInterval is the wall-clock period between Advance calls.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// TimeScale multiplies elapsed wall time into simulated seconds.
	TimeScale float64 `mapstructure:"time_scale"`
	// Seed seeds the supply jitter source. Zero selects the crypto source.
	Seed int64 `mapstructure:"seed"`
	// PlayerName names the player's ship. Empty disables the player ship.
	PlayerName string `mapstructure:"player_name"`
	// PlayerBalance is the player's opening balance.
	PlayerBalance float64 `mapstructure:"player_balance"`
}

// ContentConfig holds the locations of static reference data.
type ContentConfig struct {
	// CargoDir is the directory of cargo definition YAML files.
	CargoDir string `mapstructure:"cargo_dir"`
	// TownsDir is the directory of town definition YAML files.
	TownsDir string `mapstructure:"towns_dir"`
}

// FeedConfig holds the websocket change-notification feed settings.
type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (f FeedConfig) Addr() string {
	return fmt.Sprintf("%s:%d", f.Host, f.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Content    ContentConfig    `mapstructure:"content"`
	Feed       FeedConfig       `mapstructure:"feed"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateFeed(c.Feed); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("simulation.tick_interval must be > 0, got %s", s.TickInterval))
	}
	if s.TimeScale <= 0 {
		errs = append(errs, fmt.Sprintf("simulation.time_scale must be > 0, got %g", s.TimeScale))
	}
	if s.PlayerBalance < 0 {
		errs = append(errs, fmt.Sprintf("simulation.player_balance must be >= 0, got %g", s.PlayerBalance))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.CargoDir == "" {
		errs = append(errs, "content.cargo_dir must not be empty")
	}
	if c.TownsDir == "" {
		errs = append(errs, "content.towns_dir must not be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateFeed(f FeedConfig) error {
	if !f.Enabled {
		return nil
	}
	var errs []string
	if f.Host == "" {
		errs = append(errs, "feed.host must not be empty")
	}
	if f.Port < 1 || f.Port > 65535 {
		errs = append(errs, fmt.Sprintf("feed.port must be 1-65535, got %d", f.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with PORTTOWN_ prefix
	v.SetEnvPrefix("PORTTOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("simulation.tick_interval", "100ms")
	v.SetDefault("simulation.time_scale", 1.0)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.player_name", "Player")
	v.SetDefault("simulation.player_balance", 1000.0)

	v.SetDefault("content.cargo_dir", "content/cargo")
	v.SetDefault("content.towns_dir", "content/towns")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.host", "127.0.0.1")
	v.SetDefault("feed.port", 8088)
}
