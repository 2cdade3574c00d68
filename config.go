package runauth

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultAudienceDomain is the platform host suffix used to build audiences.
	DefaultAudienceDomain = "example-platform.app"
	// DefaultIdentitySuffix is the suffix a caller's email claim must carry.
	DefaultIdentitySuffix = ".run.app"

	defaultVerifyTimeout = 5 * time.Second
	defaultClockSkew     = 30 * time.Second
	defaultMinRefresh    = 5 * time.Minute
	defaultHTTPTimeout   = 5 * time.Second
)

// AudienceConfig identifies the receiving service.
type AudienceConfig struct {
	TenantID   string
	ResourceID string
	RegionID   string
	Domain     string
}

// Audience renders the expected audience claim. Values are used verbatim.
func (c AudienceConfig) Audience() string {
	domain := c.Domain
	if domain == "" {
		domain = DefaultAudienceDomain
	}
	return fmt.Sprintf("https://%s-%s-%s.%s", c.ResourceID, c.TenantID, c.RegionID, domain)
}

// Validate reports missing identifiers. It is meant for startup checks.
func (c AudienceConfig) Validate() error {
	switch {
	case c.TenantID == "":
		return errors.New("tenant id is required")
	case c.ResourceID == "":
		return errors.New("resource id is required")
	case c.RegionID == "":
		return errors.New("region id is required")
	}
	return nil
}

// JWKSConfig describes a key-set backed issuer.
type JWKSConfig struct {
	URL         string
	Issuer      string
	ClockSkew   time.Duration
	MinRefresh  time.Duration
	HTTPTimeout time.Duration
}

// normalize sets default values for optional fields.
func (c *JWKSConfig) normalize() {
	if c.ClockSkew <= 0 {
		c.ClockSkew = defaultClockSkew
	}
	if c.MinRefresh <= 0 {
		c.MinRefresh = defaultMinRefresh
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
}

func (c JWKSConfig) validate() error {
	switch {
	case c.URL == "":
		return errors.New("jwks url is required")
	case c.Issuer == "":
		return errors.New("issuer claim expected value is required")
	}
	return nil
}
