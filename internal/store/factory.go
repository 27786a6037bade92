package store

import (
	"context"
	"fmt"

	"stock-dashboard/internal/interfaces"
)

// NewTokenStore builds the durable store selected by token.store. It returns
// nil for "none": the token cache then runs cold on every start.
func NewTokenStore(ctx context.Context, cfg *Config) (interfaces.KVStore, error) {
	switch cfg.Token.Store {
	case "none", "":
		return nil, nil
	case "file":
		kv, err := NewFileKV(cfg.Token.FilePath)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case "redis":
		kv, err := DialRedisKV(ctx, cfg.Token.RedisAddr, cfg.Token.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Token.RedisAddr, err)
		}
		return kv, nil
	case "sqlite":
		kv, err := NewSQLiteKV(cfg.Token.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite token store: %w", err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Token.Store)
	}
}
