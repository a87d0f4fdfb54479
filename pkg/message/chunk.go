package message

// Chunk is one increment of a streaming reply.
type Chunk struct {
	// Content is the text delta for this chunk.
	Content string `json:"content,omitempty"`
	// ReasoningContent is the thinking-text delta, when the backend
	// streams reasoning separately.
	ReasoningContent string `json:"reasoning_content,omitempty"`
	// Final marks the last chunk of the reply.
	Final bool `json:"final,omitempty"`
	// Message carries the assembled reply on the final chunk.
	Message *Message `json:"message,omitempty"`
	// Err reports a mid-stream failure; the channel closes after it.
	Err error `json:"-"`
}
