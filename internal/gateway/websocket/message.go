// Package websocket provides WebSocket hub and client management.
package websocket

// WSMessage represents a WebSocket message.
type WSMessage struct {
	Type     string `json:"type"`
	Session  string `json:"session,omitempty"`
	Delta    string `json:"delta,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Path     string `json:"path,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// BroadcastMessage wraps a message with its target session.
type BroadcastMessage struct {
	Session string
	Data    []byte
}

// Message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeChat        = "chat"
	TypeStream      = "stream"
	TypeThinking    = "thinking"
	TypeDone        = "done"
	TypeReload      = "reload"
	TypeError       = "error"
)
