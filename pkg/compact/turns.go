package compact

import "parley/pkg/message"

// Turn is a derived grouping of conversational messages: a human message
// and everything up to, excluding, the next human message. Turns are
// recomputed on every strategy invocation and never stored.
type Turn struct {
	// Start is the index of the turn's first message within the slice
	// passed to SegmentTurns. Strategies that segment a filtered view
	// map it back to the full log through their own index table.
	Start    int
	Messages []message.Message
}

// SegmentTurns partitions conversational messages into turns. The input
// must already exclude system and marker messages. A new turn starts at
// each human message; a leading run of non-human messages is emitted as
// an initial partial turn rather than rejected. The output is empty only
// for empty input, and preserves message order.
func SegmentTurns(msgs []message.Message) []Turn {
	if len(msgs) == 0 {
		return nil
	}

	var turns []Turn
	current := Turn{Start: 0}

	for i, m := range msgs {
		if m.Role == message.RoleHuman && len(current.Messages) > 0 {
			turns = append(turns, current)
			current = Turn{Start: i}
		}
		current.Messages = append(current.Messages, m)
	}
	turns = append(turns, current)

	return turns
}

// turnMessages flattens turns back into a single ordered slice.
func turnMessages(turns []Turn) []message.Message {
	var out []message.Message
	for _, t := range turns {
		out = append(out, t.Messages...)
	}
	return out
}
