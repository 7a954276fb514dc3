// Package platform implements the OData v4 HTTP client against the CRM
// platform's Web API: OAuth2 client-credentials token acquisition, paged
// reads, and the write verbs the executor drives.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OAuthConfig parameterizes the client-credentials grant against the
// platform's identity provider token endpoint.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenSource fetches and caches a bearer token, refreshing it shortly
// before its JWT `exp` claim elapses. Safe for concurrent use: every
// in-flight worker shares one TokenSource per environment.
type TokenSource struct {
	cfg    OAuthConfig
	client *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource constructs a TokenSource using the given HTTP client for
// token requests (pass http.DefaultClient if no custom transport/timeout
// is needed).
func NewTokenSource(cfg OAuthConfig, client *http.Client) *TokenSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenSource{cfg: cfg, client: client}
}

// tokenResponse is the standard OAuth2 client-credentials response body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// refreshSkew requests a new token this long before the cached one's
// expiry, so a request started just before expiry doesn't race the clock.
const refreshSkew = 60 * time.Second

// Token returns a valid bearer token, fetching or refreshing one as needed.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expires.Add(-refreshSkew)) {
		return t.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.cfg.ClientID)
	form.Set("client_secret", t.cfg.ClientSecret)
	if t.cfg.Scope != "" {
		form.Set("scope", t.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	t.token = tr.AccessToken
	t.expires = tokenExpiry(tr.AccessToken, tr.ExpiresIn)
	return t.token, nil
}

// TokenExpiry parses tokenStr as a JWT without verifying its signature and
// returns the `exp` claim. Verification is the platform's job; the caller
// only wants to know whether a long run will outlive the cached token.
func TokenExpiry(tokenStr string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}

// tokenExpiry prefers the JWT's own `exp` claim (the platform's tokens are
// JWTs) over the response's expires_in, falling back to expires_in (or a
// conservative default) if the token doesn't parse as a JWT.
func tokenExpiry(token string, expiresIn int64) time.Time {
	if exp, err := TokenExpiry(token); err == nil {
		return exp
	}
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return time.Now().Add(time.Hour)
}

// BearerTransport decorates an inner RoundTripper with an Authorization
// header drawn from Tokens, so anything holding the wrapped *http.Client
// sends authenticated requests without knowing about token acquisition.
type BearerTransport struct {
	Base   http.RoundTripper
	Tokens *TokenSource
}

// RoundTrip implements http.RoundTripper. The request is cloned before the
// header is set, per the RoundTripper contract.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

var _ http.RoundTripper = (*BearerTransport)(nil)
