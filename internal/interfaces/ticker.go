package interfaces

import (
	"context"

	"stock-dashboard/internal/types"
)

// TickHandler receives parsed real-time ticks for the symbols it subscribed to.
type TickHandler interface {
	HandleTick(tick types.Tick)
}

// Feed multiplexes per-symbol real-time subscriptions over one socket.
type Feed interface {
	// Subscribe registers h for symbol and makes sure the socket is open and
	// the brokerage is streaming that symbol.
	Subscribe(ctx context.Context, symbol string, h TickHandler) error

	// Unsubscribe removes h from symbol. The symbol's upstream interest is
	// dropped when its last handler goes away.
	Unsubscribe(symbol string, h TickHandler)

	// Close tears down the socket, timers and every subscription.
	Close() error
}
