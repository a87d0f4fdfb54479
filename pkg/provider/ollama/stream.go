package ollama

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"parley/pkg/logger"
	"parley/pkg/provider"
)

// processStream processes a newline-delimited JSON stream from Ollama.
func processStream(r io.ReadCloser) <-chan provider.ChatEvent {
	events := make(chan provider.ChatEvent, 32)

	go func() {
		defer close(events)
		defer r.Close()

		scanner := bufio.NewScanner(r)
		// Increase buffer size for large responses
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var resp ollamaResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				logger.Error().Err(err).Str("line", string(line)).Msg("Failed to parse Ollama stream line")
				events <- provider.ChatEvent{
					Type:  provider.EventTypeError,
					Error: err,
				}
				continue
			}

			// Ollama may return {"error":"..."} inline in the stream body
			if resp.Error != "" {
				events <- provider.ChatEvent{
					Type:  provider.EventTypeError,
					Error: fmt.Errorf("ollama error: %s", resp.Error),
				}
				return
			}

			if resp.Message.Content != "" {
				events <- provider.ChatEvent{
					Type:  provider.EventTypeContent,
					Delta: resp.Message.Content,
				}
			}

			for i, tc := range resp.Message.ToolCalls {
				var argsStr string
				if tc.Function.Arguments != nil {
					if argsBytes, err := json.Marshal(tc.Function.Arguments); err == nil {
						argsStr = string(argsBytes)
					}
				}
				events <- provider.ChatEvent{
					Type: provider.EventTypeToolCall,
					ToolCall: &provider.ToolCall{
						Index:     i,
						ID:        tc.ID,
						Type:      "function",
						Name:      tc.Function.Name,
						Arguments: argsStr,
					},
				}
			}

			if resp.Done {
				var usage *provider.Usage
				if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
					usage = &provider.Usage{
						PromptTokens:     resp.PromptEvalCount,
						CompletionTokens: resp.EvalCount,
						TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					}
				}

				events <- provider.ChatEvent{
					Type:         provider.EventTypeDone,
					Usage:        usage,
					FinishReason: provider.FinishReasonStop,
				}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			logger.Error().Err(err).Msg("Error reading Ollama stream")
			events <- provider.ChatEvent{
				Type:  provider.EventTypeError,
				Error: err,
			}
		}
	}()

	return events
}
