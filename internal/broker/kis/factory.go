package kis

import (
	"stock-dashboard/internal/api"
	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/store"
)

// Broker bundles the brokerage components that share one set of credentials.
type Broker struct {
	Tokens   *TokenCache
	Approval *ApprovalCache
	Client   *Client
}

// New wires the token cache, approval cache and market-data client from
// configuration. kv may be nil to keep the token in memory only.
func New(cfg *store.Config, kv interfaces.KVStore) *Broker {
	creds := Credentials{AppKey: cfg.KIS.AppKey, AppSecret: cfg.KIS.AppSecret}
	httpClient := api.NewClient(
		api.WithBaseURL(cfg.KIS.BaseURL),
		api.WithTimeout(cfg.RequestTimeout()),
		api.WithLogging(true),
	)

	tokens := NewTokenCache(httpClient, creds, TokenOptions{
		Store:           kv,
		SafetyMargin:    cfg.SafetyMargin(),
		DefaultValidity: cfg.DefaultTokenValidity(),
	})

	return &Broker{
		Tokens:   tokens,
		Approval: NewApprovalCache(httpClient, creds, tokens, cfg.ApprovalValidity(), nil),
		Client: NewClient(httpClient, creds, tokens, ClientOptions{
			CustType:  cfg.KIS.CustType,
			RateLimit: float64(cfg.KIS.RateLimitPerSecond),
			Retry: api.RetryPolicy{
				MaxAttempts: cfg.Retry.MaxAttempts,
				Delay:       cfg.RetryDelay(),
			},
		}),
	}
}
