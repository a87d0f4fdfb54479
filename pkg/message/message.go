// Package message defines the message model shared by the conversation
// controller, the compaction strategies, and the provider adapters.
//
// Messages are value types: once constructed, role, content, and metadata
// are never mutated in place. Code that needs a changed message builds a
// new one, so message slices can be shared across components safely.
package message

import (
	"fmt"
	"time"
)

// Role identifies who produced a message.
type Role string

// Role constants. The string values are the wire/storage format.
const (
	RoleHuman  Role = "user"
	RoleAI     Role = "assistant"
	RoleSystem Role = "system"
	RoleTool   Role = "tool"
	// RoleMarker tags compaction checkpoints. Markers never reach a
	// backend: the controller rewrites them as system messages first.
	RoleMarker Role = "context"
)

// ParseRole validates a wire role string. Used when restoring history.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleHuman, RoleAI, RoleSystem, RoleTool, RoleMarker:
		return Role(s), nil
	}
	return "", fmt.Errorf("message: invalid role %q", s)
}

// Marker type values stored under the "type" metadata key.
const (
	MarkerSummary  = "summary"
	MarkerLRU      = "lru"
	MarkerTruncate = "truncate" // produced by older logs; accepted on restore
)

// Metadata keys written by the compaction strategies.
const (
	MetaType             = "type"
	MetaSummarizedCount  = "summarized_count"
	MetaSummary          = "summary"
	MetaPrunedFromMarker = "pruned_from_marker"
	MetaUsage            = "usage"
	MetaProvider         = "provider"
	MetaModel            = "model"
)

// ToolCall records a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is a single entry in a conversation log.
type Message struct {
	Role             Role           `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	Refusal          string         `json:"refusal,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// NewHuman creates a user message.
func NewHuman(content string) Message {
	return Message{Role: RoleHuman, Content: content, Timestamp: time.Now()}
}

// NewAI creates an assistant message.
func NewAI(content string) Message {
	return Message{Role: RoleAI, Content: content, Timestamp: time.Now()}
}

// NewSystem creates a system message.
func NewSystem(content string) Message {
	return Message{Role: RoleSystem, Content: content, Timestamp: time.Now()}
}

// NewTool creates a tool result message.
func NewTool(content string) Message {
	return Message{Role: RoleTool, Content: content, Timestamp: time.Now()}
}

// NewMarker creates a marker message with explicit metadata. Prefer the
// typed constructors below; this exists for history restore.
func NewMarker(content string, metadata map[string]any) Message {
	return Message{Role: RoleMarker, Content: content, Metadata: metadata, Timestamp: time.Now()}
}

// NewSummaryMarker creates a summary checkpoint covering summarizedCount
// messages. The raw summary text lives in metadata; the content carries a
// decorated form for display and for the system message a backend sees.
func NewSummaryMarker(summarizedCount int, summary string) Message {
	return Message{
		Role:    RoleMarker,
		Content: "[Conversation Summary] " + summary,
		Metadata: map[string]any{
			MetaType:            MarkerSummary,
			MetaSummarizedCount: summarizedCount,
			MetaSummary:         summary,
		},
		Timestamp: time.Now(),
	}
}

// NewLRUMarker creates a pruned-summary checkpoint. prunedFrom is the log
// index of the summary marker this one supersedes; that marker is kept.
func NewLRUMarker(summarizedCount int, summary string, prunedFrom int) Message {
	return Message{
		Role:    RoleMarker,
		Content: "[LRU Pruned Summary] " + summary,
		Metadata: map[string]any{
			MetaType:             MarkerLRU,
			MetaSummarizedCount:  summarizedCount,
			MetaSummary:          summary,
			MetaPrunedFromMarker: prunedFrom,
		},
		Timestamp: time.Now(),
	}
}

// IsMarker reports whether the message is a compaction checkpoint.
func (m Message) IsMarker() bool {
	return m.Role == RoleMarker
}

// MarkerType returns the marker's type metadata ("summary", "lru",
// "truncate"), or "" for non-markers and markers without a type.
func (m Message) MarkerType() string {
	if m.Role != RoleMarker {
		return ""
	}
	if s, ok := m.Metadata[MetaType].(string); ok {
		return s
	}
	return ""
}

// Summary returns the raw summary text carried by a marker. This is the
// text strategies must compose with, not the decorated Content.
func (m Message) Summary() string {
	if s, ok := m.Metadata[MetaSummary].(string); ok {
		return s
	}
	return ""
}

// SummarizedCount returns how many messages the marker accounts for.
func (m Message) SummarizedCount() int {
	return metaInt(m.Metadata, MetaSummarizedCount)
}

// PrunedFromMarker returns the index of the summary marker an lru marker
// supersedes. ok is false when the metadata is absent.
func (m Message) PrunedFromMarker() (idx int, ok bool) {
	if m.Metadata == nil {
		return 0, false
	}
	v, present := m.Metadata[MetaPrunedFromMarker]
	if !present {
		return 0, false
	}
	return anyToInt(v), true
}

func metaInt(meta map[string]any, key string) int {
	if meta == nil {
		return 0
	}
	return anyToInt(meta[key])
}

// anyToInt tolerates the numeric types JSON decoding produces.
func anyToInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
