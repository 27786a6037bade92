package main

import (
	"context"
	"fmt"
	"os"

	"stock-dashboard/internal/broker/brokerobs"
	"stock-dashboard/internal/broker/kis"
	"stock-dashboard/internal/feed"
	"stock-dashboard/internal/feed/feedobs"
	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/publisher"
	"stock-dashboard/internal/store"
	"stock-dashboard/internal/trace"
	"stock-dashboard/internal/types"

	"github.com/joho/godotenv"
)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	logger.Info(ctx, "Config loaded",
		"mode", cfg.Mode,
		"token_store", cfg.Token.Store,
		"symbols", cfg.Feed.Symbols,
	)
	return cfg, nil
}

// initializeTokenStore opens the durable token store. A store that cannot be
// opened is not fatal: the token is then kept in memory only.
func initializeTokenStore(ctx context.Context, cfg *store.Config) interfaces.KVStore {
	kv, err := store.NewTokenStore(ctx, cfg)
	if err != nil {
		logger.Warn(ctx, "Token store unavailable - tokens will not survive restarts", "store", cfg.Token.Store, "error", err)
		return nil
	}
	if kv == nil {
		logger.Info(ctx, "No durable token store configured")
	}
	return kv
}

type brokerage struct {
	tokens   interfaces.TokenProvider
	approval interfaces.ApprovalKeyProvider
}

// initializeBroker builds the token and approval caches with observability
func initializeBroker(cfg *store.Config, kv interfaces.KVStore) brokerage {
	b := kis.New(cfg, kv)
	return brokerage{
		tokens:   brokerobs.WrapTokens(b.Tokens),
		approval: brokerobs.WrapApproval(b.Approval),
	}
}

// initializePublisher connects to NATS when nats.url is set. Returns nil
// otherwise.
func initializePublisher(ctx context.Context, cfg *store.Config) *publisher.NATSPublisher {
	if cfg.NATS.URL == "" {
		logger.Info(ctx, "NATS publishing disabled")
		return nil
	}
	pub, err := publisher.Connect(publisher.Config{
		URL:           cfg.NATS.URL,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
	})
	if err != nil {
		logger.Warn(ctx, "NATS unavailable - ticks will only be logged", "error", err)
		return nil
	}
	return pub
}

// initializeFeed creates the real-time feed manager with observability
func initializeFeed(cfg *store.Config, approval interfaces.ApprovalKeyProvider, failed chan<- error) interfaces.Feed {
	mgr := feed.NewManager(approval, feed.Options{
		URL:                  cfg.KIS.WSURL,
		CustType:             cfg.KIS.CustType,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		ReconnectDelay:       cfg.ReconnectDelay(),
		HandshakeTimeout:     cfg.HandshakeTimeout(),
		OnFailure: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})
	return feedobs.Wrap(mgr)
}

// tickLogger writes every tick at debug level.
type tickLogger struct{}

func (*tickLogger) HandleTick(t types.Tick) {
	logger.Debug(context.Background(), "Tick",
		"symbol", t.Symbol,
		"time", t.Time,
		"price", t.Price,
		"sign", t.Sign.String(),
		"change_rate", t.ChangeRate,
		"volume", t.Volume,
	)
}

// subscribeSymbols registers the handlers for every configured symbol. A
// failed subscribe is logged; the registration is kept so the next
// successful connection picks the symbol up.
func subscribeSymbols(ctx context.Context, f interfaces.Feed, symbols []string, handlers ...interfaces.TickHandler) {
	for _, sym := range symbols {
		for _, h := range handlers {
			if err := f.Subscribe(ctx, sym, h); err != nil {
				logger.Warn(ctx, "Subscribe failed", "symbol", sym, "error", err)
			}
		}
	}
}
