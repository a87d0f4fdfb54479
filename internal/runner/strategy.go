package runner

import (
	"fmt"

	"parley/internal/config"
	"parley/pkg/compact"
)

// buildStrategy constructs the named context strategy with the config's
// tuning parameters. An empty name falls back to the configured default.
func buildStrategy(cfg *config.Config, name string) (compact.Strategy, error) {
	if name == "" {
		name = cfg.Context.Strategy
	}

	switch name {
	case "", "noop":
		return compact.NewNoop(), nil

	case "fifo":
		return compact.NewFIFO(compact.FIFOConfig{
			KeepRecentTurns: cfg.Context.KeepRecentTurns,
			MaxInputTokens:  cfg.Context.MaxInputTokens,
			MessageOverhead: cfg.Context.MessageOverhead,
			SetOverhead:     cfg.Context.SetOverhead,
		})

	case "summarize":
		return compact.NewSummarization(summarizeConfig(cfg))

	case "lru":
		return compact.NewLRU(compact.LRUConfig{
			SummarizeConfig:   summarizeConfig(cfg),
			MaxSummaryMarkers: cfg.Context.MaxSummaryMarkers,
		})

	default:
		return nil, fmt.Errorf("runner: unknown context strategy %q", name)
	}
}

// summarizeConfig maps config onto the summarization parameters. The
// summarizer falls back to the conversation model when no separate
// summarizer URI is configured.
func summarizeConfig(cfg *config.Config) compact.SummarizeConfig {
	uri := cfg.Summarizer.URI
	apiKey := cfg.Summarizer.APIKey
	if uri == "" {
		uri = cfg.Model.URI
		apiKey = cfg.Model.APIKey
	}

	return compact.SummarizeConfig{
		MaxInputTokens:    cfg.Context.MaxInputTokens,
		Threshold:         cfg.Context.Threshold,
		PreferRecentTurns: cfg.Context.PreferRecentTurns,
		MessageOverhead:   cfg.Context.MessageOverhead,
		SetOverhead:       cfg.Context.SetOverhead,
		SummarizerURI:     uri,
		SummarizerAPIKey:  apiKey,
	}
}
