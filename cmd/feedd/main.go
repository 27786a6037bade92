package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/trace"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}
	if len(cfg.Feed.Symbols) == 0 {
		logger.Error(ctx, "No symbols configured (feed.symbols or FEED_SYMBOLS)")
		os.Exit(1)
	}

	kv := initializeTokenStore(ctx, cfg)
	brk := initializeBroker(cfg, kv)

	failed := make(chan error, 1)
	f := initializeFeed(cfg, brk.approval, failed)

	handlers := []interfaces.TickHandler{&tickLogger{}}
	pub := initializePublisher(ctx, cfg)
	if pub != nil {
		handlers = append(handlers, pub)
	}

	subscribeSymbols(ctx, f, cfg.Feed.Symbols, handlers...)
	logger.Info(ctx, "Feed started", "symbols", cfg.Feed.Symbols)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		logger.Info(ctx, "Shutting down...", "signal", sig.String())
	case err := <-failed:
		logger.ErrorWithErr(ctx, "Real-time feed gave up", err)
	}

	if err := f.Close(); err != nil {
		logger.Warn(ctx, "Feed close failed", "error", err)
	}
	if pub != nil {
		if err := pub.Close(); err != nil {
			logger.Warn(ctx, "NATS close failed", "error", err)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	// Intentional shutdown drops the token; a crash leaves it in the store
	// for the next start to hydrate.
	if err := brk.tokens.Cleanup(shutdownCtx); err != nil {
		logger.Warn(ctx, "Token cleanup failed", "error", err)
	}
	if kv != nil {
		_ = kv.Close()
	}
	_ = trace.Shutdown(shutdownCtx)
}
