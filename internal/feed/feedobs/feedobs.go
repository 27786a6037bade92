package feedobs

import (
	"context"
	"fmt"

	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/trace"
)

// observableFeed wraps a Feed with observability (logging & tracing)
type observableFeed struct {
	feed interfaces.Feed
}

// Compile-time interface check
var _ interfaces.Feed = (*observableFeed)(nil)

// Wrap wraps a feed with observability middleware
func Wrap(feed interfaces.Feed) interfaces.Feed {
	return &observableFeed{feed: feed}
}

// Subscribe registers a tick handler with observability
func (o *observableFeed) Subscribe(ctx context.Context, symbol string, h interfaces.TickHandler) error {
	ctx, span := trace.StartSpan(ctx, "feed.Subscribe")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Subscribing to real-time ticks", "symbol", symbol)

	if err := o.feed.Subscribe(ctx, symbol, h); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to subscribe", err, "symbol", symbol)
		return fmt.Errorf("feed subscribe failed: %w", err)
	}

	logger.InfoSkip(ctx, 1, "Subscribed successfully", "symbol", symbol)
	return nil
}

// Unsubscribe removes a tick handler with observability
func (o *observableFeed) Unsubscribe(symbol string, h interfaces.TickHandler) {
	ctx, span := trace.StartSpan(context.Background(), "feed.Unsubscribe")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Unsubscribing from real-time ticks", "symbol", symbol)
	o.feed.Unsubscribe(symbol, h)
}

// Close shuts the feed down with observability
func (o *observableFeed) Close() error {
	ctx, span := trace.StartSpan(context.Background(), "feed.Close")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Closing real-time feed")

	if err := o.feed.Close(); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close feed", err)
		return err
	}

	logger.InfoSkip(ctx, 1, "Feed closed successfully")
	return nil
}
