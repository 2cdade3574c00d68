// Package config loads the webhook server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	runauth "github.com/bionicotaku/lingo-utils-runauth"
)

const (
	defaultPort            = "8080"
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds everything the server needs at startup.
type Config struct {
	Audience        runauth.AudienceConfig
	IdentitySuffix  string
	VerifyTimeout   time.Duration
	JWKSURL         string
	Issuer          string
	ClockSkew       time.Duration
	Port            string
	Debug           bool
	ShutdownTimeout time.Duration
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup. Missing audience identifiers are
// reported as an error.
func FromLookup(lookup LookupFunc) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Audience: runauth.AudienceConfig{
			TenantID:   get("PROJECT_NUMBER"),
			ResourceID: get("SERVICE_ID"),
			RegionID:   get("REGION"),
			Domain:     get("WEBHOOK_AUDIENCE_DOMAIN"),
		},
		IdentitySuffix: runauth.DefaultIdentitySuffix,
		JWKSURL:        get("WEBHOOK_JWKS_URL"),
		Issuer:         get("WEBHOOK_ISSUER"),
		Port:           get("PORT"),
	}
	if suffix, ok := lookup("WEBHOOK_IDENTITY_SUFFIX"); ok {
		cfg.IdentitySuffix = strings.TrimSpace(suffix)
	}

	cfg.Debug = strings.EqualFold(get("DEBUG"), "true")

	var err error
	if cfg.VerifyTimeout, err = parseDuration(get("WEBHOOK_VERIFY_TIMEOUT")); err != nil {
		return Config{}, fmt.Errorf("WEBHOOK_VERIFY_TIMEOUT: %w", err)
	}
	if cfg.ClockSkew, err = parseDuration(get("WEBHOOK_CLOCK_SKEW")); err != nil {
		return Config{}, fmt.Errorf("WEBHOOK_CLOCK_SKEW: %w", err)
	}
	if cfg.ShutdownTimeout, err = parseDuration(get("SHUTDOWN_TIMEOUT")); err != nil {
		return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

func (c *Config) normalize() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (c Config) validate() error {
	if err := c.Audience.Validate(); err != nil {
		return fmt.Errorf("audience: %w (set PROJECT_NUMBER, SERVICE_ID and REGION)", err)
	}
	switch {
	case c.IdentitySuffix == "":
		return errors.New("WEBHOOK_IDENTITY_SUFFIX must not be empty when set")
	case c.JWKSURL != "" && c.Issuer == "":
		return errors.New("WEBHOOK_ISSUER is required when WEBHOOK_JWKS_URL is set")
	case c.Issuer != "" && c.JWKSURL == "":
		return errors.New("WEBHOOK_JWKS_URL is required when WEBHOOK_ISSUER is set")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT %q is not a number", c.Port)
	}
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	return time.ParseDuration(v)
}
