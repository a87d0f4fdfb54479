package runner

// EventType represents the type of event emitted during a turn.
type EventType int

const (
	// EventTypeContent indicates reply text being streamed from the model.
	EventTypeContent EventType = iota
	// EventTypeReasoning indicates thinking text streamed ahead of the reply.
	EventTypeReasoning
	// EventTypeDone indicates the turn completed successfully.
	EventTypeDone
	// EventTypeError indicates an error occurred.
	EventTypeError
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventTypeContent:
		return "content"
	case EventTypeReasoning:
		return "reasoning"
	case EventTypeDone:
		return "done"
	case EventTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Event represents an event emitted while a turn runs.
type Event struct {
	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// Content contains the text delta for content events.
	Content string `json:"content,omitempty"`

	// Reasoning contains the thinking delta for reasoning events.
	Reasoning string `json:"reasoning,omitempty"`

	// Usage contains token usage information, set on done events when
	// the backend reported it.
	Usage *Usage `json:"usage,omitempty"`

	// Error contains the error for error events.
	Error error `json:"-"`

	// ErrorMsg contains the error message for serialization.
	ErrorMsg string `json:"error,omitempty"`

	// SessionID is the ID of the session this event belongs to.
	SessionID string `json:"session_id,omitempty"`
}

// NewContentEvent creates a new content event.
func NewContentEvent(content string) Event {
	return Event{
		Type:    EventTypeContent,
		Content: content,
	}
}

// NewReasoningEvent creates a new reasoning event.
func NewReasoningEvent(reasoning string) Event {
	return Event{
		Type:      EventTypeReasoning,
		Reasoning: reasoning,
	}
}

// NewDoneEvent creates a new done event with optional usage info.
func NewDoneEvent(usage *Usage) Event {
	return Event{
		Type:  EventTypeDone,
		Usage: usage,
	}
}

// NewErrorEvent creates a new error event.
func NewErrorEvent(err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Type:     EventTypeError,
		Error:    err,
		ErrorMsg: msg,
	}
}
