package feed

import (
	"context"
	"time"

	"stock-dashboard/internal/logger"
)

// Connection lifecycle callbacks. They only log; state changes happen in the
// manager before they are called.

func (m *Manager) onConnect(symbols []string) {
	logger.Feed(context.Background(), "connected", "url", m.opts.URL, "symbols", symbols, "count", len(symbols))
}

func (m *Manager) onError(err error) {
	logger.ErrorWithErr(context.Background(), "Feed socket error", err)
}

func (m *Manager) onClose(err error) {
	logger.Feed(context.Background(), "closed", "reason", err.Error())
}

func (m *Manager) onReconnect(attempt int, delay time.Duration) {
	logger.Feed(context.Background(), "reconnecting", "attempt", attempt, "max", m.opts.MaxReconnectAttempts, "delay", delay)
}

func (m *Manager) onNoReconnect(err error) {
	logger.Feed(context.Background(), "gave_up", "max", m.opts.MaxReconnectAttempts, "error", err.Error())
	if m.opts.OnFailure != nil {
		m.opts.OnFailure(err)
	}
}

// onFrameDropped logs an inbound frame that produced no (or only some) ticks.
func (m *Manager) onFrameDropped(f Frame) {
	logger.Warn(context.Background(), "Dropping feed frame",
		"kind", f.Kind.String(),
		"tr_id", f.TrID,
		"error", f.Err,
		"raw", string(f.Raw),
	)
}

func (m *Manager) onServerError(f Frame) {
	logger.Warn(context.Background(), "Feed server rejected request",
		"tr_id", f.TrID,
		"tr_key", f.TrKey,
		"rt_cd", f.RtCd,
		"msg_cd", f.MsgCd,
		"msg", f.Message,
	)
}

func (m *Manager) onHandlerPanic(symbol string, r any) {
	logger.Error(context.Background(), "Tick handler panicked", "symbol", symbol, "panic", r)
}
