package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/castwave/client/pkg/engine"
	"github.com/castwave/client/pkg/remote"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads the client configuration: defaults, then the YAML file
// (which may be missing), then CASTWAVE_* environment variables.
func LoadConfig(path string) (*engine.Config, error) {
	if path == "" {
		path = "castwave.yaml"
	}

	config := &engine.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	// Try to read the file, but allow it to not exist
	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err == nil {
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// resolveKey turns a CLI argument into a query key. Full URLs are used as
// given; anything else is an API path with an optional query string.
func resolveKey(client *remote.Client, arg string) (string, error) {
	if strings.Contains(arg, "://") {
		return arg, nil
	}

	path, rawQuery, _ := strings.Cut(arg, "?")

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("invalid query in %q: %w", arg, err)
	}

	return client.URL(path, query), nil
}
