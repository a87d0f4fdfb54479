package chat

import (
	"parley/pkg/message"
	"parley/pkg/provider"
)

// toWire converts a send view to backend form. Markers become system
// messages carrying their decorated content; the marker role itself
// never reaches a backend.
func toWire(view []message.Message) []provider.Message {
	out := make([]provider.Message, 0, len(view))
	for _, m := range view {
		role := string(m.Role)
		if m.IsMarker() {
			role = provider.RoleSystem
		}

		pm := provider.Message{Role: role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, provider.ToolCall{
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
		out = append(out, pm)
	}
	return out
}

// replyMessage builds the log entry for a backend response, recording
// the serving backend and usage counters in metadata.
func replyMessage(resp *provider.ChatResponse, providerName, model string) message.Message {
	reply := message.NewAI(resp.Content)
	reply.ReasoningContent = resp.ReasoningContent

	if len(resp.ToolCalls) > 0 {
		reply.ToolCalls = make([]message.ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			reply.ToolCalls[i] = message.ToolCall{
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			}
		}
	}

	meta := map[string]any{
		message.MetaProvider: providerName,
		message.MetaModel:    model,
	}
	if resp.Usage != nil {
		meta[message.MetaUsage] = map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
	}
	reply.Metadata = meta
	return reply
}
