package compact

import (
	"context"

	"parley/pkg/message"
)

// FIFOConfig bounds the transmitted window by turn count, token budget,
// or both. At least one limit must be set.
type FIFOConfig struct {
	// KeepRecentTurns caps the send view at the last N turns when > 0.
	KeepRecentTurns int

	// MaxInputTokens caps the send view cost when > 0. Oldest turns are
	// dropped from the view first.
	MaxInputTokens int

	// Counter measures content tokens. Defaults to the shared counter.
	Counter TokenCounter

	// MessageOverhead and SetOverhead adjust the accounting constants.
	// Zero selects the defaults.
	MessageOverhead int
	SetOverhead     int
}

// FIFO drops the oldest turns from the transmitted window. The log
// itself is never modified and no marker is inserted: dropped turns
// stay in history and reappear in stats, just not on the wire.
type FIFO struct {
	keepTurns int
	maxTokens int
	budget    budget
}

var _ Strategy = (*FIFO)(nil)

func NewFIFO(cfg FIFOConfig) (*FIFO, error) {
	if cfg.KeepRecentTurns <= 0 && cfg.MaxInputTokens <= 0 {
		return nil, ErrNoLimits
	}
	return &FIFO{
		keepTurns: cfg.KeepRecentTurns,
		maxTokens: cfg.MaxInputTokens,
		budget:    newBudget(cfg.Counter, cfg.MessageOverhead, cfg.SetOverhead),
	}, nil
}

func (f *FIFO) Name() string { return "fifo" }

func (f *FIFO) Process(_ context.Context, req Request) (*Response, error) {
	system := systemMessages(req.Messages)

	var conv []message.Message
	for _, m := range req.Messages {
		if m.Role != message.RoleSystem && !m.IsMarker() {
			conv = append(conv, m)
		}
	}

	turns := SegmentTurns(conv)
	if f.keepTurns > 0 && len(turns) > f.keepTurns {
		turns = turns[len(turns)-f.keepTurns:]
	}

	if f.maxTokens > 0 {
		for len(turns) > 1 && f.viewCost(system, turns) > f.maxTokens {
			turns = turns[1:]
		}
		// A single oversized turn is trimmed from its start, keeping at
		// least the final message so the view is never empty.
		if len(turns) == 1 {
			msgs := turns[0].Messages
			for len(msgs) > 1 && f.viewCost(system, []Turn{{Messages: msgs}}) > f.maxTokens {
				msgs = msgs[1:]
			}
			turns = []Turn{{Start: turns[0].Start, Messages: msgs}}
		}
	}

	view := make([]message.Message, 0, len(system)+len(conv))
	view = append(view, system...)
	view = append(view, turnMessages(turns)...)

	return &Response{Messages: req.Messages, SendView: view}, nil
}

func (f *FIFO) viewCost(system []message.Message, turns []Turn) int {
	view := make([]message.Message, 0, len(system))
	view = append(view, system...)
	view = append(view, turnMessages(turns)...)
	return f.budget.messages(view)
}
