package feed

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/types"
)

// State is the lifecycle of the shared socket.
type State int

const (
	StateIdle State = iota
	StateAwaitingApproval
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosing
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("feed: manager closed")

	// ErrReconnectExhausted is passed to Options.OnFailure when the socket
	// could not be reopened within MaxReconnectAttempts.
	ErrReconnectExhausted = errors.New("feed: reconnect attempts exhausted")

	// ErrHandlerNotComparable rejects handlers that cannot be deduplicated.
	ErrHandlerNotComparable = errors.New("feed: handler type is not comparable")

	errSuperseded = errors.New("feed: connection attempt superseded")
)

// Options configures a Manager.
type Options struct {
	URL      string
	CustType string

	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HandshakeTimeout     time.Duration

	// OnFailure is called once the reconnect budget is spent. The manager is
	// then Failed until the next Subscribe.
	OnFailure func(error)
}

// Compile-time interface check
var _ interfaces.Feed = (*Manager)(nil)

// Manager multiplexes every symbol subscription over one socket.
type Manager struct {
	opts     Options
	approval interfaces.ApprovalKeyProvider

	mu       sync.Mutex
	state    State
	registry *registry
	conn     *websocket.Conn
	key      string
	closed   bool

	// gen identifies the current connection session. Any teardown bumps it
	// so stale read loops and reconnect attempts retire themselves.
	gen             uint64
	cancelReconnect context.CancelFunc

	// writeMu serialises socket writes. Lock order is mu then writeMu.
	writeMu sync.Mutex
}

func NewManager(approval interfaces.ApprovalKeyProvider, opts Options) *Manager {
	if opts.CustType == "" {
		opts.CustType = "P"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	return &Manager{
		opts:     opts,
		approval: approval,
		registry: newRegistry(),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Symbols returns the symbols currently of interest, sorted.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.symbols()
}

// Subscribe registers h for symbol, opening the socket if none is open. The
// registration is kept even when an error is returned, so a later Subscribe
// or reconnect picks the symbol up.
func (m *Manager) Subscribe(ctx context.Context, symbol string, h Handler) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return errors.New("feed: empty symbol")
	}
	if h == nil {
		return errors.New("feed: nil handler")
	}
	if !reflect.TypeOf(h).Comparable() {
		return ErrHandlerNotComparable
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	added := m.registry.add(symbol, h)

	switch m.state {
	case StateOpen:
		if !added {
			m.mu.Unlock()
			return nil
		}
		conn, key := m.conn, m.key
		m.writeMu.Lock()
		m.mu.Unlock()
		err := writeSubscription(conn, key, m.opts.CustType, trTypeSubscribe, symbol)
		m.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("subscribing %s: %w", symbol, err)
		}
		logger.Feed(ctx, "subscribed", "symbol", symbol)
		return nil

	case StateIdle, StateFailed:
		m.gen++
		gen := m.gen
		m.state = StateAwaitingApproval
		m.mu.Unlock()
		return m.connect(ctx, gen)

	default:
		// A connection attempt is in flight and will subscribe every
		// registered symbol once the socket opens.
		m.mu.Unlock()
		return nil
	}
}

// Unsubscribe removes h from symbol. When symbol loses its last handler the
// brokerage is told to stop streaming it; when no symbol is left the socket
// is closed and the manager returns to Idle.
func (m *Manager) Unsubscribe(symbol string, h Handler) {
	symbol = strings.TrimSpace(symbol)
	if h == nil || !reflect.TypeOf(h).Comparable() {
		return
	}

	m.mu.Lock()
	removed, gone := m.registry.remove(symbol, h)
	if !removed || !gone {
		m.mu.Unlock()
		return
	}
	open := m.state == StateOpen
	key := m.key

	if m.registry.len() == 0 {
		conn := m.teardownLocked(StateIdle)
		if conn == nil {
			m.mu.Unlock()
			return
		}
		m.writeMu.Lock()
		m.mu.Unlock()
		if open {
			_ = writeSubscription(conn, key, m.opts.CustType, trTypeUnsubscribe, symbol)
		}
		m.writeMu.Unlock()
		closeConn(conn)
		logger.Feed(context.Background(), "idle", "last_symbol", symbol)
		return
	}

	if !open {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.writeMu.Lock()
	m.mu.Unlock()
	err := writeSubscription(conn, key, m.opts.CustType, trTypeUnsubscribe, symbol)
	m.writeMu.Unlock()
	if err != nil {
		m.onError(fmt.Errorf("unsubscribing %s: %w", symbol, err))
		return
	}
	logger.Feed(context.Background(), "unsubscribed", "symbol", symbol)
}

// Close tears down the socket, cancels any pending reconnect and drops every
// subscription. The manager cannot be reused.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.teardownLocked(StateClosing)
	m.registry.clear()
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = closeConn(conn)
	}

	m.mu.Lock()
	m.state = StateClosed
	m.mu.Unlock()

	logger.Feed(context.Background(), "shutdown")
	if err != nil {
		return fmt.Errorf("closing feed socket: %w", err)
	}
	return nil
}

// teardownLocked retires the current session and returns its socket, if
// any, for the caller to close after releasing mu.
func (m *Manager) teardownLocked(next State) *websocket.Conn {
	m.gen++
	if m.cancelReconnect != nil {
		m.cancelReconnect()
		m.cancelReconnect = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = next
	return conn
}

func closeConn(conn *websocket.Conn) error {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

// connect runs the first connection attempt of a session on the caller's
// goroutine so its error reaches the subscriber.
func (m *Manager) connect(ctx context.Context, gen uint64) error {
	err := m.open(ctx, gen)
	switch {
	case err == nil, errors.Is(err, errSuperseded):
		return nil
	case errors.Is(err, ErrClosed):
		return ErrClosed
	}

	m.mu.Lock()
	if !m.closed && m.gen == gen {
		m.state = StateFailed
	}
	m.mu.Unlock()
	m.onError(err)
	return fmt.Errorf("opening feed: %w", err)
}

// open obtains an approval key, dials, installs the socket and subscribes
// every registered symbol.
func (m *Manager) open(ctx context.Context, gen uint64) error {
	key, err := m.approval.ApprovalKey(ctx)
	if err != nil {
		return fmt.Errorf("approval key: %w", err)
	}
	if err := m.advance(gen, StateAwaitingApproval, StateConnecting); err != nil {
		return err
	}

	conn, err := dial(ctx, m.opts.URL, m.opts.HandshakeTimeout)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed || m.gen != gen {
		closed := m.closed
		m.mu.Unlock()
		_ = conn.Close()
		if closed {
			return ErrClosed
		}
		return errSuperseded
	}
	m.conn = conn
	m.key = key
	m.state = StateOpen
	symbols := m.registry.symbols()

	m.writeMu.Lock()
	m.mu.Unlock()
	for _, s := range symbols {
		if err := writeSubscription(conn, key, m.opts.CustType, trTypeSubscribe, s); err != nil {
			// The read loop sees the broken socket and reconnects.
			m.onError(fmt.Errorf("subscribing %s: %w", s, err))
			break
		}
	}
	m.writeMu.Unlock()

	go m.readLoop(conn, gen)
	m.onConnect(symbols)
	return nil
}

// advance moves the state from one step to the next if the session is still
// current. Reconnect attempts stay in Reconnecting.
func (m *Manager) advance(gen uint64, from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.gen != gen {
		return errSuperseded
	}
	if m.state == from {
		m.state = to
	}
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(gen, err)
			return
		}
		m.handleFrame(conn, Decode(data))
	}
}

func (m *Manager) handleFrame(conn *websocket.Conn, f Frame) {
	switch f.Kind {
	case FrameTick:
		m.dispatch(f.Ticks)
		if f.Err != nil {
			m.onFrameDropped(f)
		}
	case FramePingPong:
		m.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, f.Raw)
		m.writeMu.Unlock()
		if err != nil {
			m.onError(fmt.Errorf("answering pingpong: %w", err))
		}
	case FrameAck:
		logger.Debug(context.Background(), "Feed acknowledged", "tr_key", f.TrKey, "msg", f.Message)
	case FrameError:
		m.onServerError(f)
		if f.approvalRejected() {
			m.approval.Invalidate()
		}
	default:
		m.onFrameDropped(f)
	}
}

// dispatch hands ticks to their handlers in receive order, outside the lock.
func (m *Manager) dispatch(ticks []types.Tick) {
	for _, t := range ticks {
		m.mu.Lock()
		hs := m.registry.handlers(t.Symbol)
		m.mu.Unlock()
		for _, h := range hs {
			m.deliver(h, t)
		}
	}
}

func (m *Manager) deliver(h Handler, t types.Tick) {
	defer func() {
		if r := recover(); r != nil {
			m.onHandlerPanic(t.Symbol, r)
		}
	}()
	h.HandleTick(t)
}

// handleDisconnect reacts to the read loop of session gen ending.
func (m *Manager) handleDisconnect(gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	conn := m.teardownLocked(StateReconnecting)
	if m.registry.len() == 0 {
		m.state = StateIdle
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	gen = m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelReconnect = cancel
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.onClose(cause)
	go m.reconnectLoop(ctx, cancel, gen)
}

// reconnectLoop reopens the socket with a fixed delay between attempts and
// marks the manager Failed once MaxReconnectAttempts is spent.
func (m *Manager) reconnectLoop(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	maxAttempts := m.opts.MaxReconnectAttempts
	if maxAttempts == 0 {
		m.fail(gen, ErrReconnectExhausted)
		return
	}

	delay := m.opts.ReconnectDelay
	m.onReconnect(1, delay)
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		attemptCtx, cancelAttempt := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
		defer cancelAttempt()
		err := m.open(attemptCtx, gen)
		if errors.Is(err, errSuperseded) || errors.Is(err, ErrClosed) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.onError(err)
			m.onReconnect(attempt+1, next)
		}),
	)
	if err == nil || ctx.Err() != nil || errors.Is(err, errSuperseded) || errors.Is(err, ErrClosed) {
		return
	}
	m.fail(gen, fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempt, err))
}

func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateFailed
	m.cancelReconnect = nil
	m.mu.Unlock()
	m.onNoReconnect(err)
}
