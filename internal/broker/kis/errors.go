package kis

import (
	"encoding/json"
	"errors"
	"fmt"

	"stock-dashboard/internal/api"
)

var (
	// ErrMissingCredentials is returned when the app key or secret is empty.
	ErrMissingCredentials = errors.New("kis: app key and app secret are required")

	// ErrAuthExpired matches any *APIError whose code says the bearer token
	// is no longer accepted.
	ErrAuthExpired = errors.New("kis: access token expired")

	// ErrMalformedResponse wraps bodies that could not be decoded.
	ErrMalformedResponse = errors.New("kis: malformed response")
)

// Message codes the gateway uses for rejected tokens and throttling.
const (
	codeTokenExpired = "EGW00123"
	codeTokenInvalid = "EGW00121"
	codeRateLimited  = "EGW00201"
)

// APIError is the brokerage's error envelope.
type APIError struct {
	StatusCode int
	RtCd       string
	MsgCd      string
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kis: %s (rt_cd=%s, msg_cd=%s, status=%d)", e.Msg, e.RtCd, e.MsgCd, e.StatusCode)
}

// Is lets errors.Is(err, ErrAuthExpired) match expired-token envelopes.
func (e *APIError) Is(target error) bool {
	return target == ErrAuthExpired && e.AuthExpired()
}

func (e *APIError) AuthExpired() bool {
	return e.MsgCd == codeTokenExpired || e.MsgCd == codeTokenInvalid
}

func (e *APIError) RateLimited() bool {
	return e.MsgCd == codeRateLimited
}

type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

// classify turns an HTTP error whose body carries the error envelope into an
// *APIError. Anything else is returned unchanged.
func classify(err error) error {
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	var env envelope
	if json.Unmarshal(httpErr.Body, &env) != nil || env.MsgCd == "" {
		return err
	}
	return &APIError{StatusCode: httpErr.StatusCode, RtCd: env.RtCd, MsgCd: env.MsgCd, Msg: env.Msg1}
}

// transient decides which failures the call-site retry policy repeats.
func transient(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RateLimited()
	}
	return api.IsTransient(err)
}
