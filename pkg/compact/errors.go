// Package compact implements context compaction for conversation logs.
//
// A compaction strategy decides, on every turn, which portion of an
// ever-growing message log is actually transmitted to the model backend.
// Strategies never delete history: they insert marker messages that
// checkpoint what has been summarized, and compute a send view bounded
// by the most recent marker.
package compact

import "errors"

// Configuration errors, surfaced at construction time.
var (
	// ErrNoLimits indicates a FIFO strategy constructed without any limit.
	ErrNoLimits = errors.New("compact: at least one of keep_recent_turns or max_input_tokens must be set")

	// ErrMaxTokensRequired indicates a missing or non-positive token budget.
	ErrMaxTokensRequired = errors.New("compact: max_input_tokens must be positive")

	// ErrNoSummarizer indicates that no summarizer was configured.
	ErrNoSummarizer = errors.New("compact: summarizer not configured")
)

// Context-management errors, surfaced when a strategy cannot complete its
// contract. The log is always left unmodified when these occur.
var (
	// ErrEmptySummary indicates that the summarizer returned no content.
	ErrEmptySummary = errors.New("compact: summarizer returned empty summary")

	// ErrEmptyTranscript indicates that the interval selected for
	// summarization rendered to an empty transcript.
	ErrEmptyTranscript = errors.New("compact: no content to summarize")

	// ErrBoundaryLookup indicates that a computed insertion point fell
	// outside the log. This is a consistency bug, not a user error.
	ErrBoundaryLookup = errors.New("compact: preserve boundary outside log")
)
