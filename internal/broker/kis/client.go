package kis

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"stock-dashboard/internal/api"
	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
)

// ClientOptions tunes a market-data Client.
type ClientOptions struct {
	CustType string

	// RateLimit caps requests per second; zero disables the limiter.
	RateLimit float64

	Retry api.RetryPolicy
}

// Client issues authenticated market-data queries.
type Client struct {
	http     *api.Client
	creds    Credentials
	tokens   interfaces.TokenProvider
	custType string
	limiter  *rate.Limiter
	retry    api.RetryPolicy
}

func NewClient(client *api.Client, creds Credentials, tokens interfaces.TokenProvider, opts ClientOptions) *Client {
	if opts.CustType == "" {
		opts.CustType = "P"
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	retry := opts.Retry
	retry.Retryable = transient
	return &Client{
		http:     client,
		creds:    creds,
		tokens:   tokens,
		custType: opts.CustType,
		limiter:  limiter,
		retry:    retry,
	}
}

// get performs one market-data query. A rejected token is refreshed and the
// call retried exactly once; transient failures go through the retry policy.
func (c *Client) get(ctx context.Context, path, trID string, params map[string]string, out any) error {
	err := c.send(ctx, path, trID, params, out)
	if !errors.Is(err, ErrAuthExpired) {
		return err
	}

	logger.Token(ctx, "expired_on_call", "tr_id", trID)
	if _, rerr := c.tokens.ForceRefresh(ctx); rerr != nil {
		return fmt.Errorf("refreshing expired token: %w", rerr)
	}
	return c.send(ctx, path, trID, params, out)
}

func (c *Client) send(ctx context.Context, path, trID string, params map[string]string, out any) error {
	if !c.creds.complete() {
		return ErrMissingCredentials
	}
	bearer, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return fmt.Errorf("obtaining access token: %w", err)
	}

	return c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req := api.NewRequest(http.MethodGet, path).
			WithContext(ctx).
			WithHeader("authorization", "Bearer "+bearer).
			WithHeader("appkey", c.creds.AppKey).
			WithHeader("appsecret", c.creds.AppSecret).
			WithHeader("tr_id", trID).
			WithHeader("custtype", c.custType)
		for k, v := range params {
			req.WithQuery(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return classify(err)
		}

		var env envelope
		if err := resp.ParseJSON(&env); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if env.RtCd != "" && env.RtCd != "0" {
			return &APIError{StatusCode: resp.StatusCode, RtCd: env.RtCd, MsgCd: env.MsgCd, Msg: env.Msg1}
		}
		if err := resp.ParseJSON(out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return nil
	})
}
