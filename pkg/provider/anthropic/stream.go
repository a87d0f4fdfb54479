package anthropic

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"parley/pkg/logger"
	"parley/pkg/provider"
)

// processStream processes a Messages API SSE stream. Tool call input
// arrives as partial JSON fragments, so tool calls are accumulated per
// content block and emitted whole on content_block_stop.
func processStream(reader io.ReadCloser) <-chan provider.ChatEvent {
	events := make(chan provider.ChatEvent, 32)

	go func() {
		defer close(events)
		defer reader.Close()

		scanner := bufio.NewScanner(reader)
		// Increase buffer size for large streaming chunks
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		var (
			toolCall     *provider.ToolCall
			toolArgs     strings.Builder
			finishReason string
			inputTokens  int
			outputTokens int
		)

		for scanner.Scan() {
			line := scanner.Text()

			// Event type lines are redundant, the data payload repeats the type
			if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}

			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var event streamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				logger.Error().Err(err).Str("provider", "anthropic").Str("data", data).
					Msg("Failed to parse stream event")
				continue
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil && event.Message.Usage != nil {
					inputTokens = event.Message.Usage.InputTokens
				}

			case "content_block_start":
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					toolCall = &provider.ToolCall{
						Index: event.Index,
						ID:    event.ContentBlock.ID,
						Type:  "function",
						Name:  event.ContentBlock.Name,
					}
					toolArgs.Reset()
				}

			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				switch event.Delta.Type {
				case "text_delta":
					if event.Delta.Text != "" {
						events <- provider.ChatEvent{
							Type:  provider.EventTypeContent,
							Delta: event.Delta.Text,
						}
					}
				case "thinking_delta":
					if event.Delta.Thinking != "" {
						events <- provider.ChatEvent{
							Type:     provider.EventTypeThinking,
							Thinking: event.Delta.Thinking,
						}
					}
				case "input_json_delta":
					if toolCall != nil {
						toolArgs.WriteString(event.Delta.PartialJSON)
					}
				}

			case "content_block_stop":
				if toolCall != nil {
					args := toolArgs.String()
					if args == "" {
						args = "{}"
					}
					toolCall.Arguments = args
					events <- provider.ChatEvent{
						Type:     provider.EventTypeToolCall,
						ToolCall: toolCall,
					}
					toolCall = nil
				}

			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					finishReason = normalizeStopReason(event.Delta.StopReason)
				}
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}

			case "message_stop":
				doneEvent := provider.ChatEvent{
					Type:         provider.EventTypeDone,
					FinishReason: finishReason,
				}
				if inputTokens > 0 || outputTokens > 0 {
					doneEvent.Usage = &provider.Usage{
						PromptTokens:     inputTokens,
						CompletionTokens: outputTokens,
						TotalTokens:      inputTokens + outputTokens,
					}
				}
				events <- doneEvent
				return

			case "error":
				msg := "stream error"
				if event.Error != nil {
					msg = fmt.Sprintf("[%s] %s", event.Error.Type, event.Error.Message)
				}
				events <- provider.ChatEvent{
					Type:  provider.EventTypeError,
					Error: fmt.Errorf("anthropic: %s", msg),
				}
				return

			case "ping":
				// Keep-alive, nothing to do
			}
		}

		if err := scanner.Err(); err != nil {
			logger.Error().Err(err).Str("provider", "anthropic").Msg("Stream scanner error")
			events <- provider.ChatEvent{
				Type:  provider.EventTypeError,
				Error: err,
			}
		}
	}()

	return events
}
