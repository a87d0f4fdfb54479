package compact

import (
	"context"
	"fmt"

	"parley/pkg/logger"
	"parley/pkg/message"
)

// DefaultMaxSummaryMarkers is how many summary checkpoints may pile up
// before the older ones are condensed into a pruned summary.
const DefaultMaxSummaryMarkers = 5

// LRUConfig configures the LRU strategy. It takes the same parameters
// as summarization plus the marker ceiling.
type LRUConfig struct {
	SummarizeConfig

	// MaxSummaryMarkers overrides DefaultMaxSummaryMarkers when > 0.
	MaxSummaryMarkers int
}

// LRU wraps Summarization and additionally prunes cold topics: once
// more summary markers exist than the ceiling allows, the span behind
// the newest one is re-condensed against the recent markers' summaries,
// so topics nobody returned to drop out. The result goes into an
// lru-type marker inserted after the newest summary marker; nothing is
// removed, so the audit trail stays intact.
type LRU struct {
	inner      *Summarization
	maxMarkers int
}

var _ Strategy = (*LRU)(nil)

func NewLRU(cfg LRUConfig) (*LRU, error) {
	inner, err := NewSummarization(cfg.SummarizeConfig)
	if err != nil {
		return nil, err
	}
	maxMarkers := cfg.MaxSummaryMarkers
	if maxMarkers <= 0 {
		maxMarkers = DefaultMaxSummaryMarkers
	}
	return &LRU{inner: inner, maxMarkers: maxMarkers}, nil
}

func (l *LRU) Name() string { return "lru" }

func (l *LRU) Process(ctx context.Context, req Request) (*Response, error) {
	resp, err := l.inner.Process(ctx, req)
	if err != nil {
		return nil, err
	}

	full := resp.Messages
	marks := markerIndicesOfType(full, message.MarkerSummary)
	if len(marks) <= l.maxMarkers {
		return resp, nil
	}

	lastSummary := marks[len(marks)-1]
	// An lru marker already anchoring the view means this span was
	// condensed; wait for the next summary marker before pruning again.
	if i := lastMarkerOfType(full, message.MarkerLRU); i > lastSummary {
		return resp, nil
	}

	start := 0
	if len(marks) >= 2 {
		start = marks[len(marks)-2]
	}
	window := full[start:lastSummary]

	logger.Debug().
		Int("summary_markers", len(marks)).
		Int("window", len(window)).
		Msg("LRU pruning triggered")

	transcript, err := renderTranscript(window)
	if err != nil {
		return nil, err
	}

	recent := marks
	if len(recent) > l.maxMarkers {
		recent = recent[len(recent)-l.maxMarkers:]
	}
	summaries := make([]string, 0, len(recent))
	for _, i := range recent {
		if s := full[i].Summary(); s != "" {
			summaries = append(summaries, s)
		}
	}

	summary, err := l.inner.summarizer.Summarize(ctx, lruInstructionFor(summaries), transcript)
	if err != nil {
		return nil, fmt.Errorf("compact: lru condense: %w", err)
	}

	marker := message.NewLRUMarker(len(window), summary, lastSummary)
	next := insertAt(full, lastSummary+1, marker)

	return &Response{Messages: next, SendView: ExtractSendView(next)}, nil
}
