// Package anthropic implements the Provider interface for Anthropic's
// Messages API.
// API docs: https://docs.anthropic.com/en/api/messages
package anthropic

import (
	"encoding/json"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultVersion   = "2023-06-01"
	DefaultMaxTokens = 4096 // max_tokens is required by the Messages API
	DefaultTimeout   = 5 * time.Minute
)

// statusOverloaded is Anthropic's non-standard overload status code.
const statusOverloaded = 529

// --- Messages API request/response types ---

// messagesRequest represents a Messages API request.
type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
}

// chatMessage represents a message in Anthropic format. Content is
// either a plain string or a list of content blocks.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// contentBlock represents a content block in Anthropic format.
type contentBlock struct {
	Type string `json:"type"` // text, tool_use, tool_result
	Text string `json:"text,omitempty"`

	// For tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// For tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// chatTool represents a tool definition in Anthropic format.
type chatTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// messagesResponse represents a Messages API response.
type messagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []contentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        *apiUsage      `json:"usage,omitempty"`
	Error        *apiError      `json:"error,omitempty"`
}

// apiUsage represents token usage in Anthropic format.
type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// apiError represents an error payload.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// streamEvent represents an event in the Messages SSE stream. The
// payload type discriminates which fields are set.
type streamEvent struct {
	Type string `json:"type"`

	// For message_start
	Message *messagesResponse `json:"message,omitempty"`

	// For content_block_start / content_block_delta / content_block_stop
	Index        int           `json:"index,omitempty"`
	ContentBlock *contentBlock `json:"content_block,omitempty"`

	// For content_block_delta and message_delta
	Delta *streamDelta `json:"delta,omitempty"`

	// For message_delta
	Usage *apiUsage `json:"usage,omitempty"`

	// For error events
	Error *apiError `json:"error,omitempty"`
}

// streamDelta merges the delta shapes of content_block_delta
// (text_delta, input_json_delta, thinking_delta) and message_delta
// (stop_reason). The field sets are disjoint.
type streamDelta struct {
	Type         string `json:"type,omitempty"`
	Text         string `json:"text,omitempty"`
	PartialJSON  string `json:"partial_json,omitempty"`
	Thinking     string `json:"thinking,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}
