package compact

import (
	"context"

	"parley/pkg/message"
)

// Request carries the full conversation log into a strategy. The slice is
// a read view: strategies never modify it, they build new slices.
type Request struct {
	Messages []message.Message
}

// Response is the result of one strategy invocation.
type Response struct {
	// Messages is the full log, possibly with newly inserted markers.
	// Every request message appears here in its original relative order.
	Messages []message.Message

	// SendView is the subsequence the controller forwards to the backend
	// this turn: all system messages plus a contiguous tail per strategy.
	// Never empty while the log holds at least one non-system message.
	SendView []message.Message
}

// Strategy decides what portion of the log is transmitted each turn.
// Construction validates configuration; Process never fails on bad
// parameters, only on summarizer or consistency errors. A strategy is
// bound to one conversation and invoked sequentially.
type Strategy interface {
	Name() string
	Process(ctx context.Context, req Request) (*Response, error)
}

// Resetter is implemented by strategies carrying per-conversation state
// that should be dropped when the conversation is reset.
type Resetter interface {
	Reset()
}

// ExtractSendView applies the shared send-view rule: all system messages,
// then everything from the last marker (any type, inclusive) to the end;
// with no marker, every non-system message.
func ExtractSendView(msgs []message.Message) []message.Message {
	if len(msgs) == 0 {
		return nil
	}

	system := systemMessages(msgs)

	lastMarker := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsMarker() {
			lastMarker = i
			break
		}
	}

	var tail []message.Message
	if lastMarker >= 0 {
		tail = msgs[lastMarker:]
	} else {
		for _, m := range msgs {
			if m.Role != message.RoleSystem {
				tail = append(tail, m)
			}
		}
	}

	out := make([]message.Message, 0, len(system)+len(tail))
	out = append(out, system...)
	out = append(out, tail...)
	return out
}

func systemMessages(msgs []message.Message) []message.Message {
	var out []message.Message
	for _, m := range msgs {
		if m.Role == message.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// lastMarkerOfType returns the index of the last marker carrying the
// given type metadata, or -1.
func lastMarkerOfType(msgs []message.Message, markerType string) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsMarker() && msgs[i].MarkerType() == markerType {
			return i
		}
	}
	return -1
}

// markerIndicesOfType returns the indices of all markers of the given
// type, in log order.
func markerIndicesOfType(msgs []message.Message, markerType string) []int {
	var out []int
	for i, m := range msgs {
		if m.IsMarker() && m.MarkerType() == markerType {
			out = append(out, i)
		}
	}
	return out
}

// insertAt returns a new slice with m inserted at index i. The input
// slice is left untouched (copy-on-insert).
func insertAt(msgs []message.Message, i int, m message.Message) []message.Message {
	out := make([]message.Message, 0, len(msgs)+1)
	out = append(out, msgs[:i]...)
	out = append(out, m)
	out = append(out, msgs[i:]...)
	return out
}
