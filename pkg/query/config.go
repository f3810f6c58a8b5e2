package query

import (
	"errors"
	"time"
)

// ErrNegativeDuration is returned for negative cache durations.
var ErrNegativeDuration = errors.New("cache durations must not be negative")

// Config holds query store configuration
type Config struct {
	// CacheTime enables eviction of idle records. Zero disables eviction.
	CacheTime time.Duration `yaml:"cacheTime"`
	// StaleTime is the default freshness window used by CLI bindings.
	StaleTime time.Duration `yaml:"staleTime"`
	// GenerationGuard discards fetch results overtaken by a local write.
	GenerationGuard bool `yaml:"generationGuard"`
	// Persist writes successful records through to Redis and hydrates on start.
	Persist    bool          `yaml:"persist"`
	PersistTTL time.Duration `yaml:"persistTTL" default:"24h"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheTime < 0 || c.StaleTime < 0 || c.PersistTTL < 0 {
		return ErrNegativeDuration
	}

	return nil
}

// Options returns the store options the configuration selects. The persister
// and default fetcher are wired by the caller.
func (c *Config) Options() []Option {
	var opts []Option

	if c.CacheTime > 0 {
		opts = append(opts, WithCacheTime(c.CacheTime))
	}

	if c.GenerationGuard {
		opts = append(opts, WithGenerationGuard())
	}

	return opts
}
