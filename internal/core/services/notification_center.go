package services

import (
	"log/slog"
	"sync"

	"github.com/openmuni/pulse-backend/internal/core/domain"
	"github.com/openmuni/pulse-backend/internal/core/ports"
)

// CenterState is the aggregated view the notification center exposes to its
// subscribers.
type CenterState struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
	IsConnected   bool                  `json:"isConnected"`
}

// NotificationCenter is the single integration surface for a dashboard
// session: it drives the transport, funnels decoded frames into the store,
// and re-emits an aggregated state to every subscriber after each mutation.
// One center per session; Stop releases it.
type NotificationCenter struct {
	transport ports.Transport
	decoder   *Decoder
	store     *NotificationStore
	logger    *slog.Logger

	mu        sync.Mutex
	connected bool
	subs      map[int]chan CenterState
	nextSubID int
	started   bool
	stopped   bool

	runDone chan struct{}
}

// NewNotificationCenter wires a center around its collaborators. The center
// takes ownership of the transport; callers must not drive it directly.
func NewNotificationCenter(
	transport ports.Transport,
	decoder *Decoder,
	store *NotificationStore,
	logger *slog.Logger,
) *NotificationCenter {
	return &NotificationCenter{
		transport: transport,
		decoder:   decoder,
		store:     store,
		logger:    logger.With("component", "notification_center"),
		subs:      make(map[int]chan CenterState),
		runDone:   make(chan struct{}),
	}
}

// Start connects the transport and begins applying inbound events. Calling
// Start more than once, or after Stop, is a no-op.
func (c *NotificationCenter) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.transport.Connect()
	go c.run()
}

// Stop tears the transport down, waits for the event loop to drain, and
// closes all subscriber channels. Terminal for the instance.
func (c *NotificationCenter) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	started := c.started
	c.mu.Unlock()

	c.transport.Teardown()
	if started {
		<-c.runDone
	}

	c.mu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.logger.Info("notification center stopped")
}

// Subscribe registers a state observer. The channel holds the latest state
// only: a slow reader sees the newest snapshot, never a backlog. The returned
// func cancels the subscription.
func (c *NotificationCenter) Subscribe() (<-chan CenterState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan CenterState, 1)
	if c.stopped {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = ch

	// Seed the subscriber with the current state.
	pushLatest(ch, c.snapshotLocked())

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Snapshot returns the current aggregated state.
func (c *NotificationCenter) Snapshot() CenterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// MarkRead flags one notification as read. Unknown or already-read
// timestamps are no-ops.
func (c *NotificationCenter) MarkRead(timestamp int64) {
	if c.store.MarkRead(timestamp) {
		c.emit()
	}
}

// Clear empties the notification store.
func (c *NotificationCenter) Clear() {
	c.store.Clear()
	c.emit()
}

// run is the center's event loop: frames and connectivity transitions are
// applied one at a time, so store mutations never race each other.
func (c *NotificationCenter) run() {
	defer close(c.runDone)

	frames := c.transport.Frames()
	states := c.transport.States()

	for {
		select {
		case raw, ok := <-frames:
			if !ok {
				return
			}
			notification, err := c.decoder.Decode(raw)
			if err != nil {
				// Already logged by the decoder; the frame is dropped.
				continue
			}
			if c.store.Insert(*notification) {
				c.emit()
			} else {
				c.logger.Debug("ignoring duplicate notification",
					"timestamp", notification.Timestamp,
				)
			}

		case state, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			c.mu.Lock()
			c.connected = state.IsConnected()
			c.mu.Unlock()
			c.emit()
		}
	}
}

func (c *NotificationCenter) emit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	state := c.snapshotLocked()
	for _, ch := range c.subs {
		pushLatest(ch, state)
	}
}

func (c *NotificationCenter) snapshotLocked() CenterState {
	notifications, unread := c.store.Snapshot()
	return CenterState{
		Notifications: notifications,
		UnreadCount:   unread,
		IsConnected:   c.connected,
	}
}

// pushLatest delivers the state without ever blocking: if the subscriber has
// not consumed the previous snapshot it is replaced by the newer one.
func pushLatest(ch chan CenterState, state CenterState) {
	for {
		select {
		case ch <- state:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
