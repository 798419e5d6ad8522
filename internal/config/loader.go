package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Load reads configuration. A .env file in the working directory is loaded
// into the environment first (if present). Priority: ENV > YAML > defaults.
// The YAML file is read only when CONFIG_PATH is set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks business rules on loaded values.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("jwt secret must be at least 16 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if _, ok := c.AI.Profile(); !ok {
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be >= 1 (got %d)", c.Queue.Workers)
	}
	if c.Queue.Size < 1 {
		return fmt.Errorf("queue size must be >= 1 (got %d)", c.Queue.Size)
	}
	if c.Pipeline.HistoryLimit < 1 {
		c.Pipeline.HistoryLimit = 5
	}
	return nil
}
