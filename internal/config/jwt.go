package config

import (
	"fmt"
	"os"
	"strconv"
)

// PushAuthConfig holds the shared secret used to sign and verify bearer
// tokens presented by the queue push endpoint's caller.
type PushAuthConfig struct {
	Secret          string
	Audience        string
	ExpirationHours int
}

// NewPushAuthConfig reads PUSH_JWT_SECRET (required), PUSH_JWT_AUDIENCE
// (default "refinery-worker") and PUSH_JWT_EXPIRATION_HOURS (default 1).
func NewPushAuthConfig() (*PushAuthConfig, error) {
	secret := os.Getenv("PUSH_JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("PUSH_JWT_SECRET is required but not set")
	}

	expirationStr := os.Getenv("PUSH_JWT_EXPIRATION_HOURS")
	if expirationStr == "" {
		expirationStr = "1"
	}
	expirationHours, err := strconv.Atoi(expirationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PUSH_JWT_EXPIRATION_HOURS: %v", err)
	}

	cfg := &PushAuthConfig{
		Secret:          secret,
		Audience:        getEnv("PUSH_JWT_AUDIENCE", "refinery-worker"),
		ExpirationHours: expirationHours,
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *PushAuthConfig) normalize() error {
	if len(c.Secret) < 16 {
		return fmt.Errorf("PUSH_JWT_SECRET must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("PUSH_JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
