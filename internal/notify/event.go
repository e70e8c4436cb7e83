package notify

import "github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"

// EventType names an AuthEvent variant on the channel.
type EventType string

const (
	EventAuthRequest  EventType = "auth_request"
	EventAuthComplete EventType = "auth_complete"
	EventAuthError    EventType = "auth_error"
	EventPing         EventType = "ping"
	EventPong         EventType = "pong"
)

// MsgInvalidFormat is sent back for frames that are not a JSON event.
const MsgInvalidFormat = "Invalid message format"

// Event is the JSON frame exchanged between the broker and a waiting CLI.
type Event struct {
	Type      EventType       `json:"type"`
	Platform  oauth.Platform  `json:"platform,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Tokens    *oauth.TokenSet `json:"tokens,omitempty"`
	AuthURL   string          `json:"authUrl,omitempty"`
	Error     string          `json:"error,omitempty"`
}
