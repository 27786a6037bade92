package kis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"stock-dashboard/internal/api"
	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/types"
)

const approvalPath = "/oauth2/Approval"

// Compile-time interface check
var _ interfaces.ApprovalKeyProvider = (*ApprovalCache)(nil)

// ApprovalCache owns the real-time socket approval key. The gateway does not
// report a lifetime for it, so a fixed validity window is assumed.
type ApprovalCache struct {
	http     *api.Client
	creds    Credentials
	tokens   interfaces.TokenProvider
	validity time.Duration
	now      func() time.Time

	mu  sync.Mutex
	key types.ApprovalKey

	flight singleflight.Group
}

// NewApprovalCache builds a cache whose keys live for validity (24h when
// zero). now may be nil.
func NewApprovalCache(client *api.Client, creds Credentials, tokens interfaces.TokenProvider, validity time.Duration, now func() time.Time) *ApprovalCache {
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &ApprovalCache{
		http:     client,
		creds:    creds,
		tokens:   tokens,
		validity: validity,
		now:      now,
	}
}

func (a *ApprovalCache) ApprovalKey(ctx context.Context) (string, error) {
	a.mu.Lock()
	key := a.key
	a.mu.Unlock()
	if key.ValidAt(a.now()) {
		return key.Value, nil
	}

	ch := a.flight.DoChan("approval", func() (any, error) {
		return a.requestKey(context.WithoutCancel(ctx))
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

// Invalidate drops the cached key so the next call requests a new one.
func (a *ApprovalCache) Invalidate() {
	a.mu.Lock()
	a.key = types.ApprovalKey{}
	a.mu.Unlock()
}

type approvalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

func (a *ApprovalCache) requestKey(ctx context.Context) (string, error) {
	if !a.creds.complete() {
		return "", ErrMissingCredentials
	}

	bearer, err := a.tokens.GetValidToken(ctx)
	if err != nil {
		return "", fmt.Errorf("approval key needs a bearer token: %w", err)
	}

	resp, err := a.post(ctx, bearer)
	if errors.Is(err, ErrAuthExpired) {
		if bearer, err = a.tokens.ForceRefresh(ctx); err != nil {
			return "", fmt.Errorf("refreshing token for approval key: %w", err)
		}
		resp, err = a.post(ctx, bearer)
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Approval key request failed", err)
		return "", fmt.Errorf("requesting approval key: %w", err)
	}

	var body approvalResponse
	if err := resp.ParseJSON(&body); err != nil {
		return "", fmt.Errorf("requesting approval key: %w: %v", ErrMalformedResponse, err)
	}
	if body.ApprovalKey == "" {
		return "", fmt.Errorf("requesting approval key: %w: empty approval_key", ErrMalformedResponse)
	}

	key := types.ApprovalKey{Value: body.ApprovalKey, ExpiresAt: a.now().Add(a.validity)}
	a.mu.Lock()
	a.key = key
	a.mu.Unlock()

	logger.Token(ctx, "approval_issued", "expires_at", key.ExpiresAt)
	return key.Value, nil
}

func (a *ApprovalCache) post(ctx context.Context, bearer string) (*api.Response, error) {
	req := api.NewRequest(http.MethodPost, approvalPath).
		WithContext(ctx).
		WithHeader("authorization", "Bearer "+bearer).
		WithBody(map[string]string{
			"grant_type": "client_credentials",
			"appkey":     a.creds.AppKey,
			"secretkey":  a.creds.AppSecret,
		})
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}
