package provider

import "strings"

// StreamAccumulator folds streaming events into a complete response.
// Useful when a caller needs both the live event stream and the final
// assistant message.
type StreamAccumulator struct {
	content   strings.Builder
	thinking  strings.Builder
	toolCalls []ToolCall
	usage     *Usage
	finish    string
}

// NewStreamAccumulator creates an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{}
}

// Add folds a single event into the accumulator. An error event
// surfaces as the returned error.
func (a *StreamAccumulator) Add(event ChatEvent) error {
	switch event.Type {
	case EventTypeContent:
		a.content.WriteString(event.Delta)
	case EventTypeThinking:
		a.thinking.WriteString(event.Thinking)
	case EventTypeToolCall:
		if event.ToolCall != nil {
			a.toolCalls = append(a.toolCalls, *event.ToolCall)
		}
	case EventTypeDone:
		if event.Usage != nil {
			a.usage = event.Usage
		}
		if event.FinishReason != "" {
			a.finish = event.FinishReason
		}
	case EventTypeError:
		return event.Error
	}
	return nil
}

// Process drains the event channel and returns the final response.
func (a *StreamAccumulator) Process(events <-chan ChatEvent) (*ChatResponse, error) {
	for event := range events {
		if err := a.Add(event); err != nil {
			return nil, err
		}
	}
	return a.Response(), nil
}

// Response builds the response accumulated so far.
func (a *StreamAccumulator) Response() *ChatResponse {
	finish := a.finish
	if len(a.toolCalls) > 0 {
		finish = FinishReasonToolCalls
	}
	if finish == "" {
		finish = FinishReasonStop
	}
	return &ChatResponse{
		Content:          a.content.String(),
		ReasoningContent: a.thinking.String(),
		ToolCalls:        a.toolCalls,
		Usage:            a.usage,
		FinishReason:     finish,
	}
}
