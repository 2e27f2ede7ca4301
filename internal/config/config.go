package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Requests per minute for session create/find/join, keyed by client IP.
	LifecycleRateLimit int `env:"LIFECYCLE_RATE_LIMIT" envDefault:"30"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.LifecycleRateLimit <= 0 {
		return fmt.Errorf("LIFECYCLE_RATE_LIMIT must be positive, got %d", c.LifecycleRateLimit)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
