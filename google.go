package runauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

var googleValidate = idtoken.Validate

var googleIssuers = map[string]struct{}{
	"accounts.google.com":         {},
	"https://accounts.google.com": {},
}

// GoogleValidate verifies a Google-signed identity token against Google's
// published certificates and checks that Google is the issuer.
func GoogleValidate(ctx context.Context, token, audience string) (Claims, error) {
	payload, err := googleValidate(ctx, token, audience)
	if err != nil {
		return nil, mapGoogleError(err)
	}
	// idtoken.Validate checks the issuer too; this pins the trust root here.
	if _, ok := googleIssuers[payload.Issuer]; !ok {
		return nil, invalidToken(ReasonInvalidIssuer, fmt.Errorf("issuer mismatch: got %q", payload.Issuer))
	}
	if payload.Claims == nil {
		return nil, invalidToken(ReasonMalformed, errors.New("token carries no claims"))
	}
	return Claims(payload.Claims), nil
}

func mapGoogleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "audience provided does not match"):
		return invalidToken(ReasonInvalidAudience, err)
	case strings.Contains(msg, "token expired"):
		return invalidToken(ReasonExpired, err)
	case strings.Contains(msg, "could not find matching cert"):
		return invalidToken(ReasonUnknownKey, err)
	case strings.Contains(msg, "unable to retrieve cert"), strings.Contains(msg, "unable to get certs"):
		return invalidToken(ReasonKeysUnavailable, err)
	case strings.Contains(msg, "invalid token"), strings.Contains(msg, "unable to decode JWT"):
		return invalidToken(ReasonMalformed, err)
	}
	return invalidToken(ReasonInvalid, err)
}
