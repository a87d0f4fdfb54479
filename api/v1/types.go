// Package v1 provides API v1 data types and handlers.
package v1

import "time"

// Error codes for API responses.
const (
	// Client errors (4xx)
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"

	// Server errors (5xx)
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ChatRequest represents a chat request.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"` // Optional, auto-created if empty
	Message   string `json:"message"`              // Required
	Stream    bool   `json:"stream,omitempty"`     // SSE response when true
}

// ChatResponse represents a synchronous chat response.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Reasoning string `json:"reasoning,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
}

// Usage reports token consumption for a turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatStreamEvent represents a streaming event.
type ChatStreamEvent struct {
	Type      string `json:"type"`                 // "content", "thinking", "done", "error"
	Delta     string `json:"delta,omitempty"`      // For content type
	Thinking  string `json:"thinking,omitempty"`   // For thinking type
	SessionID string `json:"session_id,omitempty"` // For done type
	Usage     *Usage `json:"usage,omitempty"`      // For done type
	Error     string `json:"error,omitempty"`      // For error type
}

// SessionSummary represents session summary info.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	ModelURI     string    `json:"model_uri,omitempty"`
	Strategy     string    `json:"strategy,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionsListResponse represents the response for listing sessions.
type SessionsListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// CreateSessionRequest represents a request to create a session.
type CreateSessionRequest struct {
	Title    string `json:"title,omitempty"`
	ModelURI string `json:"model_uri,omitempty"` // Defaults to the configured model
	Strategy string `json:"strategy,omitempty"`  // Defaults to the configured strategy
}

// CreateSessionResponse represents a response after creating a session.
type CreateSessionResponse struct {
	ID        string    `json:"id"`
	ModelURI  string    `json:"model_uri,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UpdateSessionRequest represents a request to update session properties.
type UpdateSessionRequest struct {
	Title string `json:"title"`
}

// ToolCall represents a tool invocation recorded on a message.
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// MarkerInfo describes a compaction checkpoint in the transcript.
type MarkerInfo struct {
	Type            string `json:"type"` // "summary" or "lru"
	SummarizedCount int    `json:"summarized_count,omitempty"`
	PrunedFrom      int    `json:"pruned_from,omitempty"`
}

// Message represents a transcript message.
type Message struct {
	ID        string      `json:"id"`
	Role      string      `json:"role"` // user, assistant, system, tool, context
	Content   string      `json:"content"`
	Reasoning string      `json:"reasoning,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Marker    *MarkerInfo `json:"marker,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// MessagesListResponse represents the response for listing messages.
type MessagesListResponse struct {
	Messages []Message `json:"messages"`
}

// StatsResponse reports conversation statistics for a session.
type StatsResponse struct {
	SessionID     string         `json:"session_id"`
	TotalMessages int            `json:"total_messages"`
	ByRole        map[string]int `json:"by_role"`
	TotalTokens   string         `json:"total_tokens"`
	InputTokens   string         `json:"input_tokens"`
	OutputTokens  string         `json:"output_tokens"`
}

// HealthResponse represents health check response.
type HealthResponse struct {
	Status     string                     `json:"status"` // healthy, degraded
	Version    string                     `json:"version"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents component health status.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
