package runauth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Outcome labels the result of one gated request.
type Outcome string

// OutcomeAuthenticated is reported for admitted requests. Rejections report
// their ErrorKind as the outcome.
const OutcomeAuthenticated Outcome = "authenticated"

// GateOption customizes Gate, Middleware and GinGate.
type GateOption func(*gate)

// WithLogger sets the logger used for rejected requests.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithOutcomeHook registers fn to observe every gated request.
func WithOutcomeHook(fn func(context.Context, Outcome)) GateOption {
	return func(g *gate) {
		g.hook = fn
	}
}

type gate struct {
	verifier Verifier
	logger   *slog.Logger
	hook     func(context.Context, Outcome)
}

func newGate(v Verifier, opts ...GateOption) *gate {
	g := &gate{verifier: v, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Gate wraps next so it only runs for requests carrying a verified bearer
// token. The claims are available to next through ClaimsFromContext.
func Gate(v Verifier, next http.Handler, opts ...GateOption) http.Handler {
	g := newGate(v, opts...)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.authenticate(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Middleware is Gate in the func(http.Handler) http.Handler shape.
func Middleware(v Verifier, opts ...GateOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return Gate(v, next, opts...)
	}
}

func (g *gate) authenticate(r *http.Request) (Claims, *Error) {
	ctx := r.Context()
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, g.reject(r, newError(KindMissingOrMalformedHeader, nil))
	}

	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		var verr *Error
		if !errors.As(err, &verr) {
			verr = invalidToken(ReasonInvalid, err)
		}
		return nil, g.reject(r, verr)
	}
	if claims == nil {
		return nil, g.reject(r, invalidToken(ReasonInvalid, errors.New("verifier returned no claims")))
	}

	g.observe(ctx, OutcomeAuthenticated)
	return claims, nil
}

func (g *gate) reject(r *http.Request, err *Error) *Error {
	g.logger.LogAttrs(r.Context(), slog.LevelWarn, "request rejected",
		slog.String("kind", string(err.Kind)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	g.observe(r.Context(), Outcome(err.Kind))
	return err
}

func (g *gate) observe(ctx context.Context, outcome Outcome) {
	if g.hook != nil {
		g.hook(ctx, outcome)
	}
}

// bearerToken extracts the token from "Bearer <token>". Values with an empty
// token or extra whitespace-separated segments are rejected.
func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || token == "" {
		return "", false
	}
	if strings.IndexFunc(token, isSpace) >= 0 {
		return "", false
	}
	return token, true
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Message()})
}
