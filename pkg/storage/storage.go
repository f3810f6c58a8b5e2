// Package storage resolves blob storage object keys to public URLs.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Define static errors
var (
	ErrBaseURLRequired = errors.New("storage base URL is required")
	ErrBucketRequired  = errors.New("storage bucket is required")
	ErrEmptyKey        = errors.New("object key is empty")
)

const publicPath = "storage/v1/object/public"

// Config holds blob storage configuration
type Config struct {
	BaseURL string `yaml:"baseURL" env:"CASTWAVE_STORAGE_URL"`
	Bucket  string `yaml:"bucket" default:"podcasts"`
}

// Validate checks if the configuration is valid. Storage is optional; an
// empty base URL disables public URL resolution.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return nil
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid storage base URL %q", c.BaseURL)
	}

	if c.Bucket == "" {
		return ErrBucketRequired
	}

	return nil
}

// Resolver builds public object URLs of the form
// {base}/storage/v1/object/public/{bucket}/{key}.
type Resolver struct {
	base   string
	bucket string
}

// NewResolver creates a resolver for cfg
func NewResolver(cfg *Config) (*Resolver, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Resolver{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		bucket: cfg.Bucket,
	}, nil
}

// PublicURL returns the public URL of key. Each path segment of key is
// escaped; keys that are already absolute URLs are returned unchanged.
func (r *Resolver) PublicURL(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key, nil
	}

	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return fmt.Sprintf("%s/%s/%s/%s", r.base, publicPath, url.PathEscape(r.bucket), strings.Join(segments, "/")), nil
}
