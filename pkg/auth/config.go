package auth

// Config holds session configuration
type Config struct {
	// Token is a static bearer token used when no stored session exists.
	Token string `yaml:"token" env:"CASTWAVE_TOKEN"`
	// SessionKey is the Redis key (before prefixing) holding the login session.
	SessionKey string `yaml:"sessionKey" default:"session"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.SessionKey == "" {
		c.SessionKey = "session"
	}

	return nil
}
