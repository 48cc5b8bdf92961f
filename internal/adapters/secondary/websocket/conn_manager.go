package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openmuni/pulse-backend/internal/core/domain"
	"github.com/openmuni/pulse-backend/internal/core/ports"
)

const (
	// Time allowed to write a control message to the gateway.
	writeWait = 10 * time.Second

	// Time allowed between inbound messages or pings before the read fails.
	pongWait = 60 * time.Second

	// Maximum message size allowed from the gateway.
	maxMessageSize = 4096

	// Buffer for inbound frames awaiting the notification center.
	frameBuffer = 256

	// Buffer for connection-state transitions.
	stateBuffer = 16
)

// Conn is the subset of *websocket.Conn the manager drives. Narrowed so tests
// can stand in for the wire.
type Conn interface {
	ReadMessage() (int, []byte, error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPingHandler(h func(appData string) error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens one connection to the gateway.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// gorillaDialer is the production Dialer.
type gorillaDialer struct {
	dialer *websocket.Dialer
}

func (g gorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := g.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config holds connection manager configuration.
type Config struct {
	// URL is the gateway websocket endpoint, token included.
	URL string

	// Header is sent with the handshake request.
	Header http.Header

	// BackoffBase is the first retry delay after a failure.
	BackoffBase time.Duration

	// BackoffCap is the largest retry delay.
	BackoffCap time.Duration

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// Dialer overrides the production websocket dialer. Tests only.
	Dialer Dialer
}

// ConnManager owns at most one live channel to the gateway and recovers from
// drops without operator intervention. Failures are never surfaced to the
// caller; they show up only as state transitions on States.
type ConnManager struct {
	url    string
	header http.Header
	dialer Dialer
	logger *slog.Logger

	backoffBase time.Duration
	backoffCap  time.Duration
	dialTimeout time.Duration

	frames chan []byte
	states chan domain.ConnState

	mu      sync.Mutex
	state   domain.ConnState
	conn    Conn
	started bool
	torn    bool

	done    chan struct{}
	runDone chan struct{}
}

// Ensure ConnManager implements the Transport port.
var _ ports.Transport = (*ConnManager)(nil)

// NewConnManager creates a manager in the Disconnected state. Nothing is
// dialed until Connect.
func NewConnManager(cfg Config, logger *slog.Logger) *ConnManager {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = gorillaDialer{dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		}}
	}

	return &ConnManager{
		url:         cfg.URL,
		header:      cfg.Header,
		dialer:      cfg.Dialer,
		logger:      logger.With("component", "conn_manager"),
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		dialTimeout: cfg.DialTimeout,
		frames:      make(chan []byte, frameBuffer),
		states:      make(chan domain.ConnState, stateBuffer),
		state:       domain.ConnDisconnected,
		done:        make(chan struct{}),
		runDone:     make(chan struct{}),
	}
}

// Connect starts the connect/retry lifecycle. Idempotent: calling it while a
// lifecycle is already running, or after Teardown, is a no-op.
func (m *ConnManager) Connect() {
	m.mu.Lock()
	if m.started || m.torn {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.setState(domain.ConnConnecting)
	go m.run()
}

// Teardown cancels any pending retry, closes the socket if open, transitions
// to Disconnected, and closes the Frames and States channels. Terminal.
func (m *ConnManager) Teardown() {
	m.mu.Lock()
	if m.torn {
		m.mu.Unlock()
		return
	}
	m.torn = true
	started := m.started
	conn := m.conn
	m.conn = nil
	close(m.done)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if started {
		<-m.runDone
	}

	m.setState(domain.ConnDisconnected)
	close(m.frames)
	close(m.states)

	m.logger.Info("transport torn down")
}

// Frames streams raw inbound frames. Closed by Teardown.
func (m *ConnManager) Frames() <-chan []byte {
	return m.frames
}

// States streams connection-state transitions. Closed by Teardown.
func (m *ConnManager) States() <-chan domain.ConnState {
	return m.states
}

// State returns the current connection state.
func (m *ConnManager) State() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// run is the connect/read/retry loop. It exits only when Teardown closes the
// done channel.
func (m *ConnManager) run() {
	defer close(m.runDone)

	bo := newBackoff(m.backoffBase, m.backoffCap)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
		conn, err := m.dialer.Dial(ctx, m.url, m.header)
		cancel()

		if m.isDone() {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}

		if err != nil {
			delay := bo.NextBackOff()
			m.logger.Warn("dial failed, scheduling retry",
				"error", err,
				"retry_in", delay.String(),
			)
			m.setState(domain.ConnReconnecting)
			if !m.sleep(delay) {
				return
			}
			m.setState(domain.ConnConnecting)
			continue
		}

		bo.Reset()
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.setState(domain.ConnConnected)
		m.logger.Info("connected to gateway")

		m.readLoop(conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()

		if m.isDone() {
			return
		}

		delay := bo.NextBackOff()
		m.logger.Warn("connection lost, scheduling retry", "retry_in", delay.String())
		m.setState(domain.ConnReconnecting)
		if !m.sleep(delay) {
			return
		}
		m.setState(domain.ConnConnecting)
	}
}

// readLoop forwards inbound frames until the connection fails or Teardown
// closes it underneath us.
func (m *ConnManager) readLoop(conn Conn) {
	defer func() {
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		m.logger.Error("failed to set read deadline", "error", err)
		return
	}

	conn.SetPingHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			m.logger.Error("failed to set read deadline in ping handler", "error", err)
		}
		return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(writeWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !m.isDone() {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					m.logger.Warn("websocket read error", "error", err)
				}
			}
			return
		}

		select {
		case m.frames <- raw:
		case <-m.done:
			return
		default:
			m.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// sleep waits for the retry delay. Returns false when Teardown cancelled the
// pending retry.
func (m *ConnManager) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-m.done:
		return false
	case <-timer.C:
		return true
	}
}

func (m *ConnManager) isDone() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// setState records and publishes a transition. Dropping a transition on a
// full buffer is preferable to blocking the read loop.
func (m *ConnManager) setState(state domain.ConnState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()

	select {
	case m.states <- state:
	default:
		m.logger.Warn("state buffer full, dropping transition", "state", state)
	}
}
