package runauth

import "context"

type claimsKey struct{}

// WithClaims stores verified claims inside the request context.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext retrieves claims previously stored by the gate.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}
