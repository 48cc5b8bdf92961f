package ports

import (
	"github.com/openmuni/pulse-backend/internal/core/domain"
)

// Transport defines the port for the live channel the notification center
// consumes. Implementations own exactly one connection to the gateway and
// recover from drops on their own; the center only observes the results.
type Transport interface {
	// Connect starts the connection lifecycle. Calling it while already
	// connecting or connected is a no-op.
	Connect()

	// Teardown cancels any pending retry, closes the channel and the Frames
	// stream, and is terminal for the instance.
	Teardown()

	// Frames streams raw inbound frames received while connected. The channel
	// is closed by Teardown.
	Frames() <-chan []byte

	// States streams connection-state transitions.
	States() <-chan domain.ConnState

	// State returns the current connection state.
	State() domain.ConnState
}

// EventBroadcaster defines the port for pushing a frame to every connected
// dashboard session in its audience.
type EventBroadcaster interface {
	Broadcast(frame domain.Frame) error
}
