package kis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"stock-dashboard/internal/api"
	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/types"
)

// Durable layout: the token and its absolute expiry in unix milliseconds.
const (
	tokenKey       = "kis_access_token"
	tokenExpiryKey = "kis_access_token_expiry"
)

const tokenPath = "/oauth2/tokenP"

// Credentials identify the application to the brokerage.
type Credentials struct {
	AppKey    string
	AppSecret string
}

func (c Credentials) complete() bool {
	return c.AppKey != "" && c.AppSecret != ""
}

// TokenOptions tunes a TokenCache. Zero values select the defaults.
type TokenOptions struct {
	// Store persists the token across restarts. Nil keeps it in memory only.
	Store interfaces.KVStore

	SafetyMargin    time.Duration
	DefaultValidity time.Duration
	Now             func() time.Time
}

// Compile-time interface check
var _ interfaces.TokenProvider = (*TokenCache)(nil)

// TokenCache owns the REST bearer token. It issues at most one token at a
// time and reuses it until it comes within SafetyMargin of expiry.
type TokenCache struct {
	http     *api.Client
	creds    Credentials
	store    interfaces.KVStore
	margin   time.Duration
	validity time.Duration
	now      func() time.Time

	mu    sync.Mutex
	token types.BearerToken

	flight singleflight.Group
}

func NewTokenCache(client *api.Client, creds Credentials, opts TokenOptions) *TokenCache {
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = 5 * time.Minute
	}
	if opts.DefaultValidity <= 0 {
		opts.DefaultValidity = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TokenCache{
		http:     client,
		creds:    creds,
		store:    opts.Store,
		margin:   opts.SafetyMargin,
		validity: opts.DefaultValidity,
		now:      opts.Now,
	}
}

// GetValidToken returns the cached token when it is still valid, hydrating
// from the durable store first when memory has nothing usable.
func (c *TokenCache) GetValidToken(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}
	if c.hydrate(ctx) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
	}
	return c.issue(ctx)
}

// ForceRefresh issues a new token regardless of the tracked expiry.
func (c *TokenCache) ForceRefresh(ctx context.Context) (string, error) {
	logger.Token(ctx, "force_refresh")
	return c.issue(ctx)
}

// Cleanup forgets the token in memory and in the durable store.
func (c *TokenCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	c.token = types.BearerToken{}
	c.mu.Unlock()

	logger.Token(ctx, "cleanup")
	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, tokenKey, tokenExpiryKey); err != nil {
		return fmt.Errorf("deleting stored token: %w", err)
	}
	return nil
}

// Token returns a copy of the in-memory token.
func (c *TokenCache) Token() types.BearerToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.ValidAt(c.now(), c.margin) {
		return c.token.Value, true
	}
	return "", false
}

// hydrate loads the durable copy into memory. Missing or malformed entries
// count as absent.
func (c *TokenCache) hydrate(ctx context.Context) bool {
	if c.store == nil {
		return false
	}
	value, ok, err := c.store.Get(ctx, tokenKey)
	if err != nil {
		logger.Warn(ctx, "Reading stored token failed", "error", err)
		return false
	}
	if !ok || value == "" {
		return false
	}
	rawExpiry, ok, err := c.store.Get(ctx, tokenExpiryKey)
	if err != nil || !ok {
		return false
	}
	ms, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		logger.Warn(ctx, "Ignoring malformed stored token expiry", "value", rawExpiry)
		return false
	}

	c.mu.Lock()
	c.token = types.BearerToken{Value: value, ExpiresAt: time.UnixMilli(ms)}
	c.mu.Unlock()
	logger.Token(ctx, "hydrated", "expires_at", time.UnixMilli(ms))
	return true
}

// issue collapses concurrent issuance into one round-trip. The request runs
// detached from the caller's cancellation so one impatient caller cannot
// fail the others waiting on the same result.
func (c *TokenCache) issue(ctx context.Context) (string, error) {
	ch := c.flight.DoChan("token", func() (any, error) {
		return c.requestToken(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *TokenCache) requestToken(ctx context.Context) (string, error) {
	if !c.creds.complete() {
		return "", ErrMissingCredentials
	}

	issuedAt := c.now()
	resp, err := c.http.POST(ctx, tokenPath, map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.creds.AppKey,
		"appsecret":  c.creds.AppSecret,
	})
	if err != nil {
		err = classify(err)
		logger.ErrorWithErr(ctx, "Token issuance failed", err)
		return "", fmt.Errorf("issuing access token: %w", err)
	}

	var body tokenResponse
	if err := resp.ParseJSON(&body); err != nil {
		return "", fmt.Errorf("issuing access token: %w: %v", ErrMalformedResponse, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("issuing access token: %w: empty access_token", ErrMalformedResponse)
	}

	validity := c.validity
	if body.ExpiresIn > 0 {
		validity = time.Duration(body.ExpiresIn) * time.Second
	}
	tok := types.BearerToken{Value: body.AccessToken, ExpiresAt: issuedAt.Add(validity)}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()

	logger.Token(ctx, "issued", "expires_at", tok.ExpiresAt)
	c.persist(ctx, tok)
	return tok.Value, nil
}

// persist writes tok to the durable store. A failed write only costs a
// re-issue on the next cold start, so it is logged and not returned.
func (c *TokenCache) persist(ctx context.Context, tok types.BearerToken) {
	if c.store == nil {
		return
	}
	ttl := tok.ExpiresAt.Sub(c.now())
	if ttl < 0 {
		ttl = 0
	}
	if err := c.store.Set(ctx, tokenKey, tok.Value, ttl); err != nil {
		logger.ErrorWithErr(ctx, "Persisting token failed", err)
		return
	}
	if err := c.store.Set(ctx, tokenExpiryKey, strconv.FormatInt(tok.ExpiresAt.UnixMilli(), 10), ttl); err != nil {
		logger.ErrorWithErr(ctx, "Persisting token expiry failed", err)
	}
}
