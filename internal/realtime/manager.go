// Package realtime owns the persistent notification connection: one live
// socket per authenticated session, a bounded reconnect loop, and fan-out of
// decoded events to the store and the toast queue.
package realtime

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/adsign/notify/internal/model"
	apperrors "github.com/adsign/notify/pkg/errors"
	"github.com/adsign/notify/pkg/logger"
	"github.com/adsign/notify/pkg/metrics"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Sink receives every decoded realtime notification. Each registered sink is
// invoked independently; one sink's absence never blocks another.
type Sink func(kind model.Kind, n model.Notification)

// Config bounds the reconnect behavior and the duplicate-suppression window.
type Config struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	DedupWindow       time.Duration
}

// Manager owns the one realtime connection of the session. Open ties it to
// an authenticated session; Close releases the socket so a later login dials
// a fresh one. No other component may open a competing connection.
type Manager struct {
	cfg     Config
	dialer  *websocket.Dialer
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	sinks []Sink
	seen  *gocache.Cache

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Manager)

// WithMetrics wires transport counters and the connection gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) {
		mgr.now = now
	}
}

func NewManager(cfg Config, log *logger.Logger, sinks []Sink, opts ...Option) *Manager {
	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = time.Minute
	}
	m := &Manager{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		log:    log.WithComponent("realtime"),
		now:    time.Now,
		sinks:  sinks,
		seen:   gocache.New(cfg.DedupWindow, 2*cfg.DedupWindow),
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open dials the realtime endpoint with the session credential and starts the
// read loop. It fails with AuthRequired when the token is empty and rejects a
// second Open while a connection attempt or live connection exists, so a
// re-render can never leak a duplicate socket.
func (m *Manager) Open(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.AuthRequired()
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("realtime connection already %s", state)
	}
	m.state = StateConnecting
	m.mu.Unlock()

	conn, err := m.dial(ctx, token)
	if err != nil {
		m.setState(StateDisconnected)
		return apperrors.Network(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	if m.state != StateConnecting {
		// Closed while dialing; the session ended before we got a socket.
		m.mu.Unlock()
		cancel()
		conn.Close()
		return fmt.Errorf("realtime connection closed during dial")
	}
	m.conn = conn
	m.cancel = cancel
	m.done = done
	m.state = StateConnected
	m.mu.Unlock()
	m.setGauge(1)
	m.log.Info("realtime connection established")

	go m.run(runCtx, conn, token, done)
	return nil
}

// Close tears the connection down unconditionally and releases the socket
// reference. Idempotent; safe to call from any state.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	conn := m.conn
	done := m.done
	m.cancel = nil
	m.conn = nil
	m.done = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	m.setGauge(0)
}

func (m *Manager) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := m.dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// run reads frames until the transport drops, then redials up to the
// configured bound with fixed spacing. Exhausting the bound, or Close, leaves
// the manager disconnected until the next Open.
func (m *Manager) run(ctx context.Context, conn *websocket.Conn, token string, done chan struct{}) {
	defer close(done)
	limiter := rate.NewLimiter(rate.Every(m.cfg.ReconnectDelay), 1)

	for {
		err := m.readLoop(conn)
		m.setGauge(0)
		if ctx.Err() != nil {
			return
		}
		m.log.Warn("realtime connection dropped", "error", err)
		m.setState(StateReconnecting)

		conn = nil
		for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
			if err := limiter.Wait(ctx); err != nil {
				m.setState(StateDisconnected)
				return
			}
			if m.metrics != nil {
				m.metrics.ReconnectAttempts.Inc()
			}
			c, err := m.dial(ctx, token)
			if err != nil {
				m.log.Debug("reconnect attempt failed", "attempt", attempt)
				continue
			}
			conn = c
			break
		}
		if conn == nil {
			m.log.Error(nil, "reconnect attempts exhausted")
			m.setState(StateDisconnected)
			return
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			// Closed while redialing; drop the fresh socket.
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.state = StateConnected
		m.mu.Unlock()
		m.setGauge(1)
		m.log.Info("realtime connection re-established")
	}
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	defer conn.Close()
	for {
		var frame model.EventFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		m.handleEvent(frame)
	}
}

// handleEvent decodes one inbound frame and fans it out to every sink. The
// store prepend and the toast push are separate sinks of the same event, so
// neither can block the other. Events already seen within the dedup window
// are dropped.
func (m *Manager) handleEvent(frame model.EventFrame) {
	var kind model.Kind
	switch frame.Event {
	case model.EventUserNotification:
		kind = model.KindUser
	case model.EventRoleNotification:
		kind = model.KindRole
	default:
		m.log.Debug("ignoring unknown realtime event", "event", frame.Event)
		return
	}

	if id := frame.Data.NotificationID; id != "" {
		if err := m.seen.Add(id, struct{}{}, gocache.DefaultExpiration); err != nil {
			if m.metrics != nil {
				m.metrics.EventsDuplicate.Inc()
			}
			return
		}
	}

	n := frame.Data.Notification(kind, m.now())
	if m.metrics != nil {
		m.metrics.EventsReceived.WithLabelValues(string(kind)).Inc()
	}
	for _, sink := range m.sinks {
		sink(kind, n)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	// Close wins over any state the run loop wants to record.
	if m.state == StateDisconnected && s != StateDisconnected && m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) setGauge(v float64) {
	if m.metrics != nil {
		m.metrics.ConnectionState.Set(v)
	}
}
