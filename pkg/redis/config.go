// Package redis provides Redis client configuration
package redis

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	ErrAddressRequired = errors.New("redis address is required")
)

// Config holds Redis client configuration. Redis is optional: with an empty
// address the persistent cache and stored sessions are disabled.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Address is a redis:// URL or a host:port pair.
	Address  string `yaml:"address" env:"CASTWAVE_REDIS_ADDRESS"`
	Password string `yaml:"password" env:"CASTWAVE_REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"castwave"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Enabled && c.Address == "" {
		return ErrAddressRequired
	}

	if c.Prefix == "" {
		c.Prefix = "castwave"
	}

	return nil
}

// PrefixKey adds the configured prefix to a Redis key
func (c *Config) PrefixKey(key string) string {
	if c.Prefix == "" {
		return key
	}

	return fmt.Sprintf("%s:%s", c.Prefix, key)
}
