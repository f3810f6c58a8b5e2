// Package remote is the HTTP client for the podcast API. It applies the API's
// success-envelope rule and attaches bearer tokens from a TokenSource.
package remote

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds remote API client configuration
type Config struct {
	// BaseURL is the API origin, e.g. http://localhost:8000
	BaseURL   string        `yaml:"baseURL" env:"CASTWAVE_API_URL" default:"http://localhost:8000"`
	Timeout   time.Duration `yaml:"timeout" default:"30s"`
	UserAgent string        `yaml:"userAgent" default:"castwave-client"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	return nil
}
