package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/pulse-backend/internal/core/domain"
)

// fakeConn stands in for a live websocket connection.
type fakeConn struct {
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw := <-c.incoming:
		return websocket.TextMessage, raw, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) SetReadLimit(int64)                  {}
func (c *fakeConn) SetReadDeadline(time.Time) error     { return nil }
func (c *fakeConn) SetPingHandler(func(string) error)   {}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer fails a configured number of attempts, then hands out fake
// connections.
type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	failures int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts++
	if d.attempts <= d.failures {
		return nil, errors.New("connection refused")
	}

	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func newTestManager(dialer Dialer, base, cap time.Duration) *ConnManager {
	return NewConnManager(Config{
		URL:         "ws://gateway.test/api/v1/ws",
		BackoffBase: base,
		BackoffCap:  cap,
		DialTimeout: time.Second,
		Dialer:      dialer,
	}, slog.Default())
}

func waitState(t *testing.T, m *ConnManager, want domain.ConnState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State() == want
	}, 2*time.Second, time.Millisecond, "expected state %s", want)
}

func TestNewBackoff_DoublesUpToCap(t *testing.T) {
	bo := newBackoff(time.Second, 30*time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	var prev time.Duration
	for i, expected := range want {
		delay := bo.NextBackOff()
		assert.Equalf(t, expected, delay, "delay %d", i)
		assert.GreaterOrEqual(t, delay, prev)
		prev = delay
	}

	// A successful connect resets the schedule to the base delay.
	bo.Reset()
	assert.Equal(t, time.Second, bo.NextBackOff())
}

func TestConnManager_StartsDisconnected(t *testing.T) {
	m := newTestManager(&fakeDialer{}, time.Second, 30*time.Second)
	assert.Equal(t, domain.ConnDisconnected, m.State())
}

func TestConnManager_ConnectAndReceive(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, time.Millisecond, 10*time.Millisecond)

	m.Connect()
	waitState(t, m, domain.ConnConnected)

	conn := dialer.conn(0)
	require.NotNil(t, conn)
	conn.incoming <- []byte(`{"type":"system"}`)

	select {
	case raw := <-m.Frames():
		assert.JSONEq(t, `{"type":"system"}`, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not forwarded")
	}

	m.Teardown()
	assert.Equal(t, domain.ConnDisconnected, m.State())

	// Frames closes on teardown so consumers can exit their loops.
	_, ok := <-m.Frames()
	assert.False(t, ok)
}

func TestConnManager_ConnectIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, time.Millisecond, 10*time.Millisecond)

	m.Connect()
	m.Connect()
	m.Connect()
	waitState(t, m, domain.ConnConnected)

	assert.Equal(t, 1, dialer.attemptCount())
	m.Teardown()
}

func TestConnManager_ReconnectsAfterDrop(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, time.Millisecond, 10*time.Millisecond)

	m.Connect()
	waitState(t, m, domain.ConnConnected)

	// Drop the connection underneath the manager.
	dialer.conn(0).Close()

	require.Eventually(t, func() bool {
		return dialer.attemptCount() >= 2 && m.State() == domain.ConnConnected
	}, 2*time.Second, time.Millisecond)

	// The replacement connection still delivers frames.
	conn := dialer.conn(1)
	require.NotNil(t, conn)
	conn.incoming <- []byte(`{"type":"system"}`)

	select {
	case <-m.Frames():
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not forwarded after reconnect")
	}

	m.Teardown()
}

func TestConnManager_RetriesWhileDialFails(t *testing.T) {
	dialer := &fakeDialer{failures: 3}
	m := newTestManager(dialer, time.Millisecond, 5*time.Millisecond)

	m.Connect()
	waitState(t, m, domain.ConnConnected)

	assert.Equal(t, 4, dialer.attemptCount())
	m.Teardown()
}

func TestConnManager_TeardownCancelsPendingRetry(t *testing.T) {
	dialer := &fakeDialer{failures: 1 << 30} // never succeeds
	m := newTestManager(dialer, 50*time.Millisecond, time.Second)

	m.Connect()

	// Wait until a retry is pending.
	require.Eventually(t, func() bool {
		return dialer.attemptCount() >= 1 && m.State() == domain.ConnReconnecting
	}, 2*time.Second, time.Millisecond)

	m.Teardown()
	attempts := dialer.attemptCount()

	// Advance past the scheduled retry: no further attempt may happen.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, attempts, dialer.attemptCount())
	assert.Equal(t, domain.ConnDisconnected, m.State())
}

func TestConnManager_TeardownIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer, time.Millisecond, 10*time.Millisecond)

	m.Connect()
	waitState(t, m, domain.ConnConnected)

	m.Teardown()
	m.Teardown()

	// Connect after teardown must not start a new lifecycle.
	m.Connect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.attemptCount())
}
