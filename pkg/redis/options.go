package redis

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewOptions converts the configuration into go-redis options. Addresses in
// URL form are parsed with redis.ParseURL; explicit password and DB settings
// override the URL's.
func NewOptions(cfg *Config) (*redis.Options, error) {
	if cfg.Address == "" {
		return nil, ErrAddressRequired
	}

	opt := &redis.Options{Addr: cfg.Address}

	if strings.Contains(cfg.Address, "://") {
		parsed, err := redis.ParseURL(cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}

		opt = parsed
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	if cfg.DB != 0 {
		opt.DB = cfg.DB
	}

	return opt, nil
}

// NewClient creates a Redis client for cfg
func NewClient(cfg *Config) (*redis.Client, error) {
	opt, err := NewOptions(cfg)
	if err != nil {
		return nil, err
	}

	return redis.NewClient(opt), nil
}
