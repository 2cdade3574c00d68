package runauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	testIssuer   = "https://accounts.google.com"
	testAudience = "https://svc-123-us-central1.example-platform.app"
	testEmail    = "invoker@svc-123-us-central1.run.app"
	testKID      = "test-key"
)

type keyServer struct {
	key *rsa.PrivateKey
	url string
}

func newJWKS(t *testing.T) *keyServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if err := pub.Set(jwk.KeyIDKey, testKID); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if err := pub.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("set alg: %v", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("add key: %v", err)
	}
	payload, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)

	return &keyServer{key: key, url: server.URL}
}

func sign(t *testing.T, builder *jwt.Builder, key *rsa.PrivateKey) string {
	t.Helper()
	token, err := builder.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	jwkPriv, err := jwk.FromRaw(key)
	if err != nil {
		t.Fatalf("private key jwk: %v", err)
	}
	if err := jwkPriv.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("set alg: %v", err)
	}
	if err := jwkPriv.Set(jwk.KeyIDKey, testKID); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, jwkPriv))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

// validToken returns a builder for a token the test verifier accepts.
func validToken() *jwt.Builder {
	now := time.Now().UTC()
	return jwt.NewBuilder().
		Issuer(testIssuer).
		Subject("108234567890").
		Audience([]string{testAudience}).
		IssuedAt(now).
		NotBefore(now.Add(-time.Minute)).
		Expiration(now.Add(time.Hour)).
		Claim("email", testEmail).
		Claim("email_verified", true)
}

func newTestVerifier(t *testing.T, ks *keyServer, opts ...Option) *TokenVerifier {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	validator, err := NewJWKSValidator(ctx, JWKSConfig{
		URL:         ks.url,
		Issuer:      testIssuer,
		ClockSkew:   time.Second,
		MinRefresh:  time.Minute,
		HTTPTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewJWKSValidator: %v", err)
	}
	if err := validator.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	return New("123", "svc", "us-central1", append([]Option{WithValidateFunc(validator.Validate)}, opts...)...)
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	return e.Kind
}
