package refresh

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Define static errors
var (
	ErrScheduleNameRequired = errors.New("refresh schedule name is required")
	ErrDuplicateSchedule    = errors.New("duplicate refresh schedule name")
	ErrInvalidTick          = errors.New("refresh tick must be positive")
)

//nolint:gochecknoglobals // shared cron parser
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule invalidates every cached key starting with Prefix on a cron
// schedule. An empty prefix matches every key.
type Schedule struct {
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
	Spec   string `yaml:"schedule"`
}

// Config holds refresh scheduler configuration
type Config struct {
	Enabled   bool       `yaml:"enabled"`
	Schedules []Schedule `yaml:"schedules"`
	// EvictSchedule runs Store.Evict; empty disables the sweep.
	EvictSchedule string        `yaml:"evictSchedule" default:"@every 5m"`
	Tick          time.Duration `yaml:"tick" default:"1s"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Tick <= 0 {
		return ErrInvalidTick
	}

	seen := make(map[string]struct{}, len(c.Schedules))

	for _, s := range c.Schedules {
		if s.Name == "" {
			return ErrScheduleNameRequired
		}

		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateSchedule, s.Name)
		}
		seen[s.Name] = struct{}{}

		if _, err := parser.Parse(s.Spec); err != nil {
			return fmt.Errorf("invalid schedule %s: %w", s.Name, err)
		}
	}

	if c.EvictSchedule != "" {
		if _, err := parser.Parse(c.EvictSchedule); err != nil {
			return fmt.Errorf("invalid evict schedule: %w", err)
		}
	}

	return nil
}
