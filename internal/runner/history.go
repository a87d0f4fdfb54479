package runner

import (
	"encoding/json"
	"fmt"

	"parley/internal/storage"
	"parley/pkg/message"
)

// storageMessages converts a live transcript into storage rows. ToolCalls
// and Metadata are stored as JSON so marker metadata survives restarts.
func storageMessages(sessionID string, msgs []message.Message) ([]*storage.Message, error) {
	rows := make([]*storage.Message, 0, len(msgs))
	for _, m := range msgs {
		row := &storage.Message{
			SessionID:        sessionID,
			Role:             string(m.Role),
			Content:          m.Content,
			ReasoningContent: m.ReasoningContent,
			Refusal:          m.Refusal,
			CreatedAt:        m.Timestamp,
		}

		if len(m.ToolCalls) > 0 {
			data, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return nil, fmt.Errorf("runner: encode tool calls: %w", err)
			}
			row.ToolCalls = data
		}
		if len(m.Metadata) > 0 {
			data, err := json.Marshal(m.Metadata)
			if err != nil {
				return nil, fmt.Errorf("runner: encode metadata: %w", err)
			}
			row.Metadata = data
		}

		rows = append(rows, row)
	}
	return rows, nil
}

// chatMessages converts stored rows back into a live transcript.
func chatMessages(rows []*storage.Message) ([]message.Message, error) {
	msgs := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		role, err := message.ParseRole(row.Role)
		if err != nil {
			return nil, fmt.Errorf("runner: restore message %s: %w", row.ID, err)
		}

		m := message.Message{
			Role:             role,
			Content:          row.Content,
			ReasoningContent: row.ReasoningContent,
			Refusal:          row.Refusal,
			Timestamp:        row.CreatedAt,
		}

		if len(row.ToolCalls) > 0 {
			if err := json.Unmarshal(row.ToolCalls, &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("runner: restore message %s: decode tool calls: %w", row.ID, err)
			}
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("runner: restore message %s: decode metadata: %w", row.ID, err)
			}
		}

		msgs = append(msgs, m)
	}
	return msgs, nil
}
