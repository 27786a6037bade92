package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/types"
)

// Config for the NATS connection.
type Config struct {
	URL           string
	SubjectPrefix string
	ClientID      string

	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// NATSPublisher forwards every tick it receives to <prefix>.<symbol> as JSON.
// It is a feed handler, so one publisher can be subscribed to many symbols.
type NATSPublisher struct {
	prefix  string
	nc      *nats.Conn
	publish func(subject string, data []byte) error

	published atomic.Int64
	failed    atomic.Int64
}

// Compile-time interface check
var _ interfaces.TickHandler = (*NATSPublisher)(nil)

// Connect dials the NATS server and returns a publisher bound to it.
func Connect(cfg Config) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "stock-dashboard-feed"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}

	ctx := context.Background()
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.ErrorWithErr(ctx, "NATS disconnected", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(ctx, "NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info(ctx, "NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w", err)
	}
	logger.Info(ctx, "Connected to NATS", "url", cfg.URL, "prefix", cfg.SubjectPrefix)

	p := newPublisher(cfg.SubjectPrefix, nc.Publish)
	p.nc = nc
	return p, nil
}

func newPublisher(prefix string, publish func(string, []byte) error) *NATSPublisher {
	prefix = strings.Trim(prefix, ". ")
	if prefix == "" {
		prefix = "ticks"
	}
	return &NATSPublisher{prefix: prefix, publish: publish}
}

// Subject returns the subject ticks for symbol are published on.
func (p *NATSPublisher) Subject(symbol string) string {
	return p.prefix + "." + symbol
}

// HandleTick publishes t. Failures are logged and counted; the feed is never
// blocked on a broken broker connection.
func (p *NATSPublisher) HandleTick(t types.Tick) {
	data, err := json.Marshal(t)
	if err != nil {
		p.failed.Add(1)
		logger.ErrorWithErr(context.Background(), "Failed to encode tick", err, "symbol", t.Symbol)
		return
	}
	if err := p.publish(p.Subject(t.Symbol), data); err != nil {
		p.failed.Add(1)
		logger.ErrorWithErr(context.Background(), "Failed to publish tick", err, "symbol", t.Symbol)
		return
	}
	p.published.Add(1)
}

// Stats returns how many ticks were published and how many failed.
func (p *NATSPublisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	published, failed := p.Stats()
	logger.Info(context.Background(), "NATS publisher closed", "published", published, "failed", failed)
	return err
}
