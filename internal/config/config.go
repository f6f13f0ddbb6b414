// Package config loads server configuration from a YAML file with
// environment-variable expansion.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server binary needs at startup.
type Config struct {
	ListenAddr   string  `yaml:"listen_addr"`
	DatabaseURL  string  `yaml:"database_url"`
	RedisAddr    string  `yaml:"redis_addr"` // empty disables the quote cache
	JWTSecret    string  `yaml:"jwt_secret"`
	StartingCash float64 `yaml:"starting_cash"` // balance granted to new traders
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.StartingCash == 0 {
		c.StartingCash = 10000
	}
}

// Validate checks that required fields are present and sane.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.StartingCash < 0 {
		return fmt.Errorf("starting_cash must not be negative")
	}
	return nil
}
