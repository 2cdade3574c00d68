package runauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWKSValidator validates tokens against a key set published at a URL.
// Keys are cached and refreshed in the background for the life of the
// context passed to NewJWKSValidator.
type JWKSValidator struct {
	cfg   JWKSConfig
	cache *jwk.Cache
}

// NewJWKSValidator registers the key set URL. It does not fetch keys; call
// Warmup to fail fast at startup.
func NewJWKSValidator(ctx context.Context, cfg JWKSConfig) (*JWKSValidator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalize()

	cache := jwk.NewCache(ctx)
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
	}
	if err := cache.Register(
		cfg.URL,
		jwk.WithMinRefreshInterval(cfg.MinRefresh),
		jwk.WithHTTPClient(httpClient),
	); err != nil {
		return nil, fmt.Errorf("register jwks %q: %w", cfg.URL, err)
	}
	return &JWKSValidator{cfg: cfg, cache: cache}, nil
}

// Warmup fetches the key set once.
func (j *JWKSValidator) Warmup(ctx context.Context) error {
	refreshCtx, cancel := context.WithTimeout(ctx, j.cfg.HTTPTimeout)
	defer cancel()
	if _, err := j.cache.Refresh(refreshCtx, j.cfg.URL); err != nil {
		return invalidToken(ReasonKeysUnavailable, err)
	}
	return nil
}

// Validate satisfies ValidateFunc.
func (j *JWKSValidator) Validate(ctx context.Context, token, audience string) (Claims, error) {
	keySet, err := j.cache.Get(ctx, j.cfg.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, invalidToken(ReasonKeysUnavailable, err)
	}

	parsed, err := jwt.Parse([]byte(token), jwt.WithKeySet(keySet), jwt.WithValidate(false))
	if err != nil {
		return nil, classifyParseError(err)
	}

	if err := jwt.Validate(parsed,
		jwt.WithAcceptableSkew(j.cfg.ClockSkew),
		jwt.WithIssuer(j.cfg.Issuer),
		jwt.WithAudience(audience),
	); err != nil {
		switch {
		case errors.Is(err, jwt.ErrInvalidIssuer()):
			return nil, invalidToken(ReasonInvalidIssuer, err)
		case errors.Is(err, jwt.ErrInvalidAudience()):
			return nil, invalidToken(ReasonInvalidAudience, err)
		case errors.Is(err, jwt.ErrTokenExpired()):
			return nil, invalidToken(ReasonExpired, err)
		case errors.Is(err, jwt.ErrTokenNotYetValid()):
			return nil, invalidToken(ReasonNotYetValid, err)
		}
		return nil, classifyValidationError(err)
	}

	return rawClaims(token)
}

// rawClaims decodes the payload segment so callers see every claim under
// its original name and JSON type.
func rawClaims(token string) (Claims, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, invalidToken(ReasonMalformed, err)
	}
	var claims Claims
	if err := json.Unmarshal(msg.Payload(), &claims); err != nil {
		return nil, invalidToken(ReasonMalformed, fmt.Errorf("decode payload: %w", err))
	}
	return claims, nil
}

func classifyParseError(err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "key id"):
		return invalidToken(ReasonUnknownKey, err)
	case strings.Contains(lower, "verify"):
		return invalidToken(ReasonInvalid, err)
	}
	return invalidToken(ReasonMalformed, err)
}

func classifyValidationError(err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "token expired") || strings.Contains(lower, `"exp" not satisfied`):
		return invalidToken(ReasonExpired, err)
	case strings.Contains(lower, `"nbf" not satisfied`):
		return invalidToken(ReasonNotYetValid, err)
	}
	return invalidToken(ReasonInvalid, err)
}
