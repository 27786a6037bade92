package brokerobs

import (
	"context"
	"fmt"

	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/trace"
)

// observableTokens wraps a TokenProvider with observability (logging & tracing)
type observableTokens struct {
	tokens interfaces.TokenProvider
}

// Compile-time interface checks
var (
	_ interfaces.TokenProvider       = (*observableTokens)(nil)
	_ interfaces.ApprovalKeyProvider = (*observableApproval)(nil)
)

// WrapTokens wraps a token provider with observability middleware
func WrapTokens(tokens interfaces.TokenProvider) interfaces.TokenProvider {
	return &observableTokens{tokens: tokens}
}

// GetValidToken returns a bearer token with observability
func (o *observableTokens) GetValidToken(ctx context.Context) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetValidToken")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching access token")

	tok, err := o.tokens.GetValidToken(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to obtain access token", err)
		return "", err
	}

	logger.DebugSkip(ctx, 1, "Access token ready")
	return tok, nil
}

// ForceRefresh issues a new token with observability
func (o *observableTokens) ForceRefresh(ctx context.Context) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.ForceRefresh")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Forcing access token refresh")

	tok, err := o.tokens.ForceRefresh(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to refresh access token", err)
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	logger.InfoSkip(ctx, 1, "Access token refreshed")
	return tok, nil
}

// Cleanup drops the token with observability
func (o *observableTokens) Cleanup(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Cleanup")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Cleaning up access token")

	if err := o.tokens.Cleanup(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to clean up access token", err)
		return err
	}
	return nil
}

// observableApproval wraps an ApprovalKeyProvider with observability
type observableApproval struct {
	approval interfaces.ApprovalKeyProvider
}

// WrapApproval wraps an approval key provider with observability middleware
func WrapApproval(approval interfaces.ApprovalKeyProvider) interfaces.ApprovalKeyProvider {
	return &observableApproval{approval: approval}
}

// ApprovalKey returns the socket approval key with observability
func (o *observableApproval) ApprovalKey(ctx context.Context) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.ApprovalKey")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching approval key")

	key, err := o.approval.ApprovalKey(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to obtain approval key", err)
		return "", err
	}

	logger.DebugSkip(ctx, 1, "Approval key ready")
	return key, nil
}

// Invalidate drops the cached approval key
func (o *observableApproval) Invalidate() {
	logger.InfoSkip(context.Background(), 1, "Invalidating approval key")
	o.approval.Invalidate()
}
