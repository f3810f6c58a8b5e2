// Package api provides a REST API for inspecting and invalidating the query
// cache of a running client.
package api

import (
	"errors"
	"time"
)

// ErrAPIAddrRequired is returned when API is enabled but no address is configured
var (
	ErrAPIAddrRequired = errors.New("api address is required when API is enabled")
)

// Config represents API service configuration
type Config struct {
	Enabled bool `yaml:"enabled" default:"false"`
	// Addr defaults to loopback: the API serves cached user data.
	Addr string `yaml:"addr" default:"127.0.0.1:8081"`
	// FetchTimeout bounds fetch-through requests on /api/v1/query.
	FetchTimeout time.Duration `yaml:"fetchTimeout" default:"30s"`
}

// Validate validates the API configuration
func (c *Config) Validate() error {
	if c.Enabled && c.Addr == "" {
		return ErrAPIAddrRequired
	}

	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}

	return nil
}
