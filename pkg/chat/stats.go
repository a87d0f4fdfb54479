package chat

import (
	"fmt"
	"strconv"

	"parley/pkg/message"
)

// Stats summarizes a conversation: message counts by role plus token
// usage aggregated from reply metadata. Token counts switch to K
// notation ("12.5K") past a thousand.
type Stats struct {
	TotalMessages int            `json:"total_messages"`
	ByRole        map[string]int `json:"by_role"`
	TotalTokens   string         `json:"total_tokens"`
	InputTokens   string         `json:"input_tokens"`
	OutputTokens  string         `json:"output_tokens"`
}

// Stats computes the current conversation statistics.
func (c *Conversation) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		TotalMessages: len(c.log),
		ByRole:        make(map[string]int),
	}

	var total, input, output int
	for _, m := range c.log {
		st.ByRole[string(m.Role)]++

		usage, ok := m.Metadata[message.MetaUsage].(map[string]any)
		if !ok {
			continue
		}
		total += usageInt(usage, "total_tokens")
		input += usageInt(usage, "prompt_tokens")
		output += usageInt(usage, "completion_tokens")
	}

	st.TotalTokens = formatTokens(total)
	st.InputTokens = formatTokens(input)
	st.OutputTokens = formatTokens(output)
	return st
}

// usageInt tolerates the numeric types a JSON round-trip produces.
func usageInt(usage map[string]any, key string) int {
	switch n := usage[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func formatTokens(n int) string {
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return strconv.Itoa(n)
}
