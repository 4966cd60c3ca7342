package domain

import "time"

// SessionState is the connection state of one chat-network session.
type SessionState string

const (
	SessionConnecting   SessionState = "CONNECTING"
	SessionConnected    SessionState = "CONNECTED"
	SessionDisconnected SessionState = "DISCONNECTED"
)

// Session describes one logical connection to the chat network. The id is
// caller-chosen and unique within the registry.
type Session struct {
	ID               string       `json:"id"`
	DisplayName      string       `json:"display_name"`
	State            SessionState `json:"state"`
	LastConnectedAt  *time.Time   `json:"last_connected_at,omitempty"`
	ReconnectAttempt int          `json:"reconnect_attempt"`
}

// NewSession creates a Session in the initial Connecting state.
func NewSession(id, displayName string) *Session {
	return &Session{
		ID:          id,
		DisplayName: displayName,
		State:       SessionConnecting,
	}
}
