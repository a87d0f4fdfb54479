package compact

import (
	"context"
	"fmt"

	"parley/pkg/logger"
	"parley/pkg/message"
)

const (
	// DefaultThreshold triggers compaction once the transmitted window
	// costs more than this fraction of the token limit.
	DefaultThreshold = 0.75

	// DefaultPreferRecentTurns is how many complete turns stay verbatim
	// behind the in-flight one.
	DefaultPreferRecentTurns = 2
)

// SummarizeConfig configures the summarization strategy.
type SummarizeConfig struct {
	// MaxInputTokens is the model's input budget. Required.
	MaxInputTokens int

	// Threshold scales MaxInputTokens into the compaction trigger.
	// Zero selects DefaultThreshold.
	Threshold float64

	// PreferRecentTurns is the number of recent turns kept out of the
	// summary. Zero selects DefaultPreferRecentTurns.
	PreferRecentTurns int

	// Counter measures content tokens. Defaults to the shared counter.
	Counter TokenCounter

	// MessageOverhead and SetOverhead adjust the accounting constants.
	MessageOverhead int
	SetOverhead     int

	// Summarizer performs the condensation. When nil, one is built from
	// SummarizerURI and SummarizerAPIKey; one of the two forms is
	// required.
	Summarizer       Summarizer
	SummarizerURI    string
	SummarizerAPIKey string
}

// Summarization folds old turns into a cumulative summary marker once
// the transmitted window crosses the trigger. The log is only ever
// grown: the marker is inserted at the preserve boundary and the
// summarized messages stay in history behind it.
type Summarization struct {
	maxTokens     int
	triggerTokens int
	preferTurns   int
	budget        budget
	summarizer    Summarizer
}

var _ Strategy = (*Summarization)(nil)

func NewSummarization(cfg SummarizeConfig) (*Summarization, error) {
	if cfg.MaxInputTokens <= 0 {
		return nil, ErrMaxTokensRequired
	}

	sum := cfg.Summarizer
	if sum == nil {
		if cfg.SummarizerURI == "" {
			return nil, ErrNoSummarizer
		}
		var err error
		sum, err = NewModelSummarizer(cfg.SummarizerURI, cfg.SummarizerAPIKey)
		if err != nil {
			return nil, err
		}
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	preferTurns := cfg.PreferRecentTurns
	if preferTurns <= 0 {
		preferTurns = DefaultPreferRecentTurns
	}

	return &Summarization{
		maxTokens:     cfg.MaxInputTokens,
		triggerTokens: int(float64(cfg.MaxInputTokens) * threshold),
		preferTurns:   preferTurns,
		budget:        newBudget(cfg.Counter, cfg.MessageOverhead, cfg.SetOverhead),
		summarizer:    sum,
	}, nil
}

func (s *Summarization) Name() string { return "summarize" }

func (s *Summarization) Process(ctx context.Context, req Request) (*Response, error) {
	full := req.Messages
	if len(full) == 0 {
		return &Response{}, nil
	}

	lastMarker := lastMarkerOfType(full, message.MarkerSummary)

	// Conversational messages behind the marker, with their positions in
	// the full log. The preserve boundary is found in this space and
	// mapped back for insertion.
	var conv []message.Message
	var toFull []int
	for i := lastMarker + 1; i < len(full); i++ {
		m := full[i]
		if m.Role == message.RoleSystem || m.IsMarker() {
			continue
		}
		conv = append(conv, m)
		toFull = append(toFull, i)
	}

	if !s.shouldCompact(full, lastMarker, conv) {
		return passthrough(full), nil
	}

	boundary := preserveStart(conv, s.preferTurns)
	if boundary <= 0 {
		// Nothing summarizable behind the preserved turns.
		return passthrough(full), nil
	}
	if boundary >= len(toFull) {
		return nil, fmt.Errorf("%w: conversation index %d", ErrBoundaryLookup, boundary)
	}

	// The interval runs from the previous marker (inclusive, so its
	// summary folds into the new one) to the preserve boundary.
	begin := 0
	if lastMarker >= 0 {
		begin = lastMarker
	}
	end := toFull[boundary]
	interval := full[begin:end]

	logger.Debug().
		Int("messages", len(interval)).
		Int("boundary", end).
		Msg("Summarization triggered")

	transcript, err := renderTranscript(interval)
	if err != nil {
		return nil, err
	}

	summary, err := s.summarizer.Summarize(ctx, summaryInstruction, transcript)
	if err != nil {
		return nil, fmt.Errorf("compact: summarize: %w", err)
	}

	marker := message.NewSummaryMarker(len(interval), summary)
	next := insertAt(full, end, marker)

	return &Response{Messages: next, SendView: ExtractSendView(next)}, nil
}

// shouldCompact measures the window summarization is responsible for:
// system messages plus everything from its own last marker on, or the
// whole conversation before the first compaction.
func (s *Summarization) shouldCompact(full []message.Message, lastMarker int, conv []message.Message) bool {
	view := systemMessages(full)
	if lastMarker >= 0 {
		view = append(view, full[lastMarker:]...)
	} else {
		view = append(view, conv...)
	}
	return s.budget.messages(view) > s.triggerTokens
}

// preserveStart returns the index within conv of the first preserved
// message: the (keep+1)-th human counting backward, where keep never
// exceeds the number of complete turns behind the in-flight one.
// Returns -1 when at most one turn exists.
func preserveStart(conv []message.Message, preferTurns int) int {
	var humans []int
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == message.RoleHuman {
			humans = append(humans, i)
		}
	}
	if len(humans) <= 1 {
		return -1
	}

	keep := preferTurns
	if max := len(humans) - 1; keep > max {
		keep = max
	}
	return humans[keep]
}

func passthrough(full []message.Message) *Response {
	return &Response{Messages: full, SendView: ExtractSendView(full)}
}
