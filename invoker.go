package runauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/impersonate"
)

// TokenFactory builds an identity token source for an audience.
type TokenFactory func(ctx context.Context, audience string, params InvokeParams) (oauth2.TokenSource, error)

// InvokeParams selects the identity a token is minted for.
type InvokeParams struct {
	ServiceAccount string
	Delegates      []string
}

// InvokeOption customizes a single Token or Post call.
type InvokeOption func(*InvokeParams)

// AsServiceAccount impersonates email when minting the token.
func AsServiceAccount(email string) InvokeOption {
	return func(p *InvokeParams) {
		p.ServiceAccount = email
	}
}

// WithDelegates sets the impersonation delegation chain.
func WithDelegates(delegates ...string) InvokeOption {
	return func(p *InvokeParams) {
		p.Delegates = append([]string(nil), delegates...)
	}
}

// InvokerConfig holds defaults for an Invoker.
type InvokerConfig struct {
	ServiceAccount string
	Delegates      []string
	TokenFactory   TokenFactory
	HTTPClient     *http.Client
}

// Invoker calls gated webhooks with a freshly minted identity token.
// Token sources are cached per (audience, service account, delegates).
type Invoker struct {
	mu       sync.RWMutex
	factory  TokenFactory
	client   *http.Client
	sources  map[invokerKey]oauth2.TokenSource
	defaults InvokeParams
}

type invokerKey struct {
	Audience       string
	ServiceAccount string
	Delegates      string
}

// NewInvoker constructs an Invoker. Application Default Credentials are used
// unless a TokenFactory is supplied.
func NewInvoker(cfg InvokerConfig) *Invoker {
	factory := cfg.TokenFactory
	if factory == nil {
		factory = defaultTokenFactory
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Invoker{
		factory: factory,
		client:  client,
		sources: make(map[invokerKey]oauth2.TokenSource),
		defaults: InvokeParams{
			ServiceAccount: cfg.ServiceAccount,
			Delegates:      append([]string(nil), cfg.Delegates...),
		},
	}
}

// Token returns an identity token for audience.
func (i *Invoker) Token(ctx context.Context, audience string, opts ...InvokeOption) (string, error) {
	if strings.TrimSpace(audience) == "" {
		return "", errors.New("audience is required")
	}

	params := i.defaults
	params.Delegates = append([]string(nil), i.defaults.Delegates...)
	for _, opt := range opts {
		opt(&params)
	}

	key := invokerKey{
		Audience:       audience,
		ServiceAccount: params.ServiceAccount,
		Delegates:      strings.Join(params.Delegates, ","),
	}
	src, err := i.source(ctx, key, params)
	if err != nil {
		return "", err
	}

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty identity token returned")
	}
	return tok.AccessToken, nil
}

// Post sends payload as JSON to endpoint with a bearer token for audience.
// The caller owns the response body.
func (i *Invoker) Post(ctx context.Context, endpoint, audience string, payload any, opts ...InvokeOption) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	token, err := i.Token(ctx, audience, opts...)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", bearerPrefix+token)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	return resp, nil
}

func (i *Invoker) source(ctx context.Context, key invokerKey, params InvokeParams) (oauth2.TokenSource, error) {
	i.mu.RLock()
	src, ok := i.sources[key]
	i.mu.RUnlock()
	if ok {
		return src, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if src, ok = i.sources[key]; ok {
		return src, nil
	}

	// Sources refresh lazily long after the first caller's request ends.
	ts, err := i.factory(context.WithoutCancel(ctx), key.Audience, params)
	if err != nil {
		return nil, err
	}
	src = oauth2.ReuseTokenSource(nil, ts)
	i.sources[key] = src
	return src, nil
}

func defaultTokenFactory(ctx context.Context, audience string, params InvokeParams) (oauth2.TokenSource, error) {
	if params.ServiceAccount != "" {
		return impersonate.IDTokenSource(ctx, impersonate.IDTokenConfig{
			Audience:        audience,
			TargetPrincipal: params.ServiceAccount,
			IncludeEmail:    true,
			Delegates:       params.Delegates,
		})
	}
	return idtoken.NewTokenSource(ctx, audience)
}
