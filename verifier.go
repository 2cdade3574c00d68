package runauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidateFunc checks signature, validity window, audience and issuer of an
// identity token and returns its decoded claims. It must return an error,
// never partial claims, when any check fails.
type ValidateFunc func(ctx context.Context, token, audience string) (Claims, error)

// Verifier is satisfied by TokenVerifier; the gate depends on this interface.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

// TokenVerifier admits identity tokens minted for one audience by a
// platform-managed service identity. It is immutable and safe for
// concurrent use.
type TokenVerifier struct {
	audience string
	suffix   string
	timeout  time.Duration
	validate ValidateFunc
}

type verifierOptions struct {
	domain   string
	suffix   string
	timeout  time.Duration
	validate ValidateFunc
}

// Option customizes a TokenVerifier at construction.
type Option func(*verifierOptions)

// WithAudienceDomain overrides the host suffix used when building the audience.
func WithAudienceDomain(domain string) Option {
	return func(o *verifierOptions) {
		o.domain = domain
	}
}

// WithIdentitySuffix sets the suffix the email claim must end with. A blank
// suffix keeps DefaultIdentitySuffix.
func WithIdentitySuffix(suffix string) Option {
	return func(o *verifierOptions) {
		o.suffix = suffix
	}
}

// WithTimeout bounds each call to the validation primitive.
func WithTimeout(d time.Duration) Option {
	return func(o *verifierOptions) {
		o.timeout = d
	}
}

// WithValidateFunc replaces the validation primitive (Google certs by default).
func WithValidateFunc(fn ValidateFunc) Option {
	return func(o *verifierOptions) {
		o.validate = fn
	}
}

// New builds a verifier for the audience derived from the three identifiers.
// It performs no I/O.
func New(tenantID, resourceID, regionID string, opts ...Option) *TokenVerifier {
	o := verifierOptions{
		domain:   DefaultAudienceDomain,
		suffix:   DefaultIdentitySuffix,
		timeout:  defaultVerifyTimeout,
		validate: GoogleValidate,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = defaultVerifyTimeout
	}
	// Every email ends with "", so an empty suffix would admit any caller.
	if strings.TrimSpace(o.suffix) == "" {
		o.suffix = DefaultIdentitySuffix
	}
	if o.validate == nil {
		o.validate = GoogleValidate
	}
	aud := AudienceConfig{
		TenantID:   tenantID,
		ResourceID: resourceID,
		RegionID:   regionID,
		Domain:     o.domain,
	}
	return &TokenVerifier{
		audience: aud.Audience(),
		suffix:   o.suffix,
		timeout:  o.timeout,
		validate: o.validate,
	}
}

// Audience returns the audience every accepted token must carry.
func (v *TokenVerifier) Audience() string {
	return v.audience
}

// IdentitySuffix returns the required email claim suffix.
func (v *TokenVerifier) IdentitySuffix() string {
	return v.suffix
}

// Verify validates rawToken and applies the service-identity policy.
// Any returned error is a *Error.
func (v *TokenVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	if rawToken == "" {
		return nil, invalidToken(ReasonMalformed, errors.New("token is empty"))
	}

	validateCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	claims, err := v.validate(validateCtx, rawToken, v.audience)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(validateCtx.Err(), context.DeadlineExceeded) {
			return nil, newError(KindTimeout, err)
		}
		var verr *Error
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, invalidToken(ReasonInvalid, err)
	}
	if claims == nil {
		return nil, invalidToken(ReasonInvalid, errors.New("validator returned no claims"))
	}

	// The primitive proves who signed the token and for which audience, not
	// what kind of principal holds it.
	if email := claims.Email(); !strings.HasSuffix(email, v.suffix) || email == v.suffix {
		return nil, newError(KindUntrustedIssuer, fmt.Errorf("email %q lacks suffix %q", email, v.suffix))
	}

	return claims, nil
}
