package domain

// ConnState describes the live channel's lifecycle state.
type ConnState string

const (
	ConnDisconnected ConnState = "DISCONNECTED"
	ConnConnecting   ConnState = "CONNECTING"
	ConnConnected    ConnState = "CONNECTED"
	ConnReconnecting ConnState = "RECONNECTING"
)

// IsConnected reports whether the channel is currently usable.
func (s ConnState) IsConnected() bool {
	return s == ConnConnected
}
