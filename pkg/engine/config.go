// Package engine wires the castwave client's components together
package engine

import (
	"errors"
	"fmt"

	"github.com/castwave/client/pkg/api"
	"github.com/castwave/client/pkg/auth"
	"github.com/castwave/client/pkg/query"
	"github.com/castwave/client/pkg/redis"
	"github.com/castwave/client/pkg/refresh"
	"github.com/castwave/client/pkg/remote"
	"github.com/castwave/client/pkg/storage"
	"github.com/sirupsen/logrus"
)

var (
	// ErrPersistRequiresRedis is returned when the persistent cache is enabled without Redis
	ErrPersistRequiresRedis = errors.New("cache.persist requires redis to be enabled")
	// ErrInvalidLogLevel is returned when the logging level cannot be parsed
	ErrInvalidLogLevel = errors.New("invalid logging level")
)

// Config represents the complete client configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"warn"`
	MetricsAddr     string `yaml:"metricsAddr"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	// Remote API and session
	Remote remote.Config `yaml:"remote"`
	Auth   auth.Config   `yaml:"auth"`

	// Blob storage for podcast images
	Storage storage.Config `yaml:"storage"`

	// Dependencies
	Redis redis.Config `yaml:"redis"`

	// Query cache
	Cache   query.Config   `yaml:"cache"`
	Refresh refresh.Config `yaml:"refresh"`

	// Cache inspection API
	API api.Config `yaml:"api"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging)
	}

	if err := c.Remote.Validate(); err != nil {
		return err
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if err := c.Redis.Validate(); err != nil {
		return err
	}

	if err := c.Cache.Validate(); err != nil {
		return err
	}

	if c.Cache.Persist && !c.Redis.Enabled {
		return ErrPersistRequiresRedis
	}

	if err := c.Refresh.Validate(); err != nil {
		return err
	}

	return c.API.Validate()
}
