package runauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeVerifier struct {
	calls atomic.Int32
	fn    func(token string) (Claims, error)
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (Claims, error) {
	f.calls.Add(1)
	return f.fn(token)
}

type countingHandler struct {
	calls  atomic.Int32
	claims Claims
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	h.claims, _ = ClaimsFromContext(r.Context())
	w.Header().Set("X-Handler", "downstream")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, `{"status":"success"}`)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body["error"]
}

func TestGate_RejectsMissingOrMalformedHeader(t *testing.T) {
	headers := []string{
		"",
		"Basic dXNlcjpwYXNz",
		"bearer token",
		"BEARER token",
		"Bearer",
		"Bearer ",
		"Bearer  token",
		"Bearer tok extra",
		"Bearer tok\textra",
		"Token abc",
	}
	for _, header := range headers {
		t.Run(fmt.Sprintf("%q", header), func(t *testing.T) {
			verifier := &fakeVerifier{fn: func(string) (Claims, error) {
				return Claims{"email": testEmail}, nil
			}}
			next := &countingHandler{}
			w := serve(t, Gate(verifier, next, WithLogger(quietLogger())), header)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if got := errorBody(t, w); got != "Missing or invalid authorization header" {
				t.Fatalf("error = %q", got)
			}
			if verifier.calls.Load() != 0 {
				t.Fatal("verifier must not be called")
			}
			if next.calls.Load() != 0 {
				t.Fatal("handler must not be called")
			}
		})
	}
}

func TestGate_VerificationFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"expired", invalidToken(ReasonExpired, fmt.Errorf("exp not satisfied")), "Token verification failed: token expired"},
		{"untrusted", newError(KindUntrustedIssuer, nil), "token is not from the expected platform-managed service identity."},
		{"timeout", newError(KindTimeout, context.DeadlineExceeded), "Token verification failed: verification timed out"},
		{"plain error", fmt.Errorf("stack trace and secrets"), "Token verification failed: invalid token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &fakeVerifier{fn: func(string) (Claims, error) { return nil, tc.err }}
			next := &countingHandler{}
			w := serve(t, Gate(verifier, next, WithLogger(quietLogger())), "Bearer abc.def.ghi")

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if got := errorBody(t, w); got != tc.want {
				t.Fatalf("error = %q, want %q", got, tc.want)
			}
			if verifier.calls.Load() != 1 {
				t.Fatalf("verifier calls = %d, want 1", verifier.calls.Load())
			}
			if next.calls.Load() != 0 {
				t.Fatal("handler must not be called")
			}
		})
	}
}

func TestGate_SuccessPassesClaimsAndResponse(t *testing.T) {
	want := Claims{"email": testEmail, "sub": "42", "custom": []any{"a", "b"}}
	var gotToken string
	verifier := &fakeVerifier{fn: func(token string) (Claims, error) {
		gotToken = token
		return want, nil
	}}
	next := &countingHandler{}
	var outcomes []Outcome
	h := Gate(verifier, next,
		WithLogger(quietLogger()),
		WithOutcomeHook(func(_ context.Context, o Outcome) { outcomes = append(outcomes, o) }),
	)

	w := serve(t, h, "Bearer abc.def.ghi")

	if gotToken != "abc.def.ghi" {
		t.Fatalf("token = %q", gotToken)
	}
	if next.calls.Load() != 1 {
		t.Fatalf("handler calls = %d, want 1", next.calls.Load())
	}
	if !reflect.DeepEqual(next.claims, want) {
		t.Fatalf("claims = %v, want %v", next.claims, want)
	}
	if w.Code != http.StatusAccepted || w.Header().Get("X-Handler") != "downstream" || w.Body.String() != `{"status":"success"}` {
		t.Fatalf("response altered: %d %v %q", w.Code, w.Header(), w.Body.String())
	}
	if len(outcomes) != 1 || outcomes[0] != OutcomeAuthenticated {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestGate_NoClaimsOutsideGate(t *testing.T) {
	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Fatal("expected no claims in bare context")
	}
}

func TestMiddleware_WithRealVerifier(t *testing.T) {
	ks := newJWKS(t)
	v := newTestVerifier(t, ks)
	next := &countingHandler{}
	h := Middleware(v, WithLogger(quietLogger()))(next)

	w := serve(t, h, "Bearer "+sign(t, validToken(), ks.key))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if next.claims.Email() != testEmail {
		t.Fatalf("unexpected claims: %v", next.claims)
	}

	w = serve(t, h, "Bearer "+sign(t, validToken().Claim("email", "user@gmail.com"), ks.key))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if next.calls.Load() != 1 {
		t.Fatalf("handler calls = %d, want 1", next.calls.Load())
	}
}

func TestGate_ConcurrentRequestsAreIsolated(t *testing.T) {
	ks := newJWKS(t)
	v := newTestVerifier(t, ks)

	h := Gate(v, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		_, _ = io.WriteString(w, claims.Email())
	}), WithLogger(quietLogger()))

	const n = 24
	tokens := make([]string, n)
	for i := range tokens {
		switch i % 3 {
		case 0:
			tokens[i] = sign(t, validToken().Claim("email", fmt.Sprintf("caller-%d@hook.run.app", i)), ks.key)
		case 1:
			tokens[i] = sign(t, validToken().Claim("email", fmt.Sprintf("user-%d@gmail.com", i)), ks.key)
		default:
			tokens[i] = fmt.Sprintf("garbage-%d", i)
		}
	}

	var wg sync.WaitGroup
	results := make([]*httptest.ResponseRecorder, n)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
			req.Header.Set("Authorization", "Bearer "+tokens[i])
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			results[i] = w
		}(i)
	}
	wg.Wait()

	for i, w := range results {
		switch i % 3 {
		case 0:
			want := fmt.Sprintf("caller-%d@hook.run.app", i)
			if w.Code != http.StatusOK || w.Body.String() != want {
				t.Fatalf("request %d: %d %q, want %q", i, w.Code, w.Body.String(), want)
			}
		case 1:
			if w.Code != http.StatusUnauthorized || errorBody(t, w) != msgUntrustedIssuer {
				t.Fatalf("request %d: %d %q", i, w.Code, w.Body.String())
			}
		default:
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("request %d: status %d", i, w.Code)
			}
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":       {"abc", true},
		"Bearer a.b.c":     {"a.b.c", true},
		"Bearer ":          {"", false},
		"Bearer a b":       {"", false},
		"bearer abc":       {"", false},
		" Bearer abc":      {"", false},
		"Bearer abc\n":     {"", false},
		"BearerXabc":       {"", false},
		"Bearer\u00a0abc":  {"", false},
	}
	for header, want := range cases {
		got, ok := bearerToken(header)
		if got != want.token || ok != want.ok {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", header, got, ok, want.token, want.ok)
		}
	}
}
