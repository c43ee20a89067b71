package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrMalformedMessage = errors.New("malformed message")
)

// State is the connection state of the Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Callback receives the payload of every frame on its channel.
type Callback func(payload json.RawMessage)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Frame is a data message from the server.
type Frame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Control actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ControlFrame is a subscribe or unsubscribe request sent to the server.
type ControlFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., ws://localhost:5000/ws)
	Token            string        // Bearer token, sent as the token query parameter
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // How often to send keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	WSURL                string        // WebSocket URL without the token
	ReconnectBaseDelay   time.Duration // Retry n waits n × base
	MaxReconnectAttempts int           // Retries after the first failure; 0 means 5, negative disables retries
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	PingTimeout          time.Duration
	WriteTimeout         time.Duration
	BufferSize           int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	c := DefaultClientConfig()
	return ManagerConfig{
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     c.HandshakeTimeout,
		PingInterval:         c.PingInterval,
		PingTimeout:          c.PingTimeout,
		WriteTimeout:         c.WriteTimeout,
		BufferSize:           c.BufferSize,
	}
}

// ManagerStats provides statistics about the Manager.
type ManagerStats struct {
	State             State `json:"state"`
	Subscriptions     int   `json:"subscriptions"`
	ReconnectAttempts int   `json:"reconnect_attempts"`
	Dispatched        int64 `json:"dispatched"`
	Malformed         int64 `json:"malformed"`
	CallbackPanics    int64 `json:"callback_panics"`
}
