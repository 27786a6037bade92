package interfaces

import (
	"context"
	"time"
)

// TokenProvider hands out bearer tokens for the brokerage REST API.
type TokenProvider interface {
	// GetValidToken returns a token valid beyond the safety margin, issuing one
	// only when the cached token is missing or about to expire.
	GetValidToken(ctx context.Context) (string, error)

	// ForceRefresh issues a new token regardless of the tracked expiry.
	ForceRefresh(ctx context.Context) (string, error)

	// Cleanup drops the cached token from memory and durable storage.
	Cleanup(ctx context.Context) error
}

// ApprovalKeyProvider hands out the key required to open the real-time socket.
type ApprovalKeyProvider interface {
	ApprovalKey(ctx context.Context) (string, error)
	Invalidate()
}

// KVStore is the durable key-value store the token cache persists into.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
