package compact

import (
	"context"
	"fmt"
	"strings"

	"parley/pkg/modeluri"
	"parley/pkg/provider"

	// Register the built-in model backends.
	_ "parley/pkg/provider/anthropic"
	_ "parley/pkg/provider/ollama"
	_ "parley/pkg/provider/openai"
)

// summaryTemperature keeps compaction output stable across runs.
const summaryTemperature = 0.2

// Summarizer condenses a rendered transcript. Implementations must
// return an error rather than an empty string.
type Summarizer interface {
	Summarize(ctx context.Context, instruction, transcript string) (string, error)
}

// ModelSummarizer summarizes through a chat model addressed by URI. The
// summarizer model is usually smaller and cheaper than the conversation
// model.
type ModelSummarizer struct {
	prov  provider.Provider
	model string
}

var _ Summarizer = (*ModelSummarizer)(nil)

// NewModelSummarizer resolves uri ("provider/model" or
// "provider@base:model?params") against the provider registry.
func NewModelSummarizer(uri, apiKey string) (*ModelSummarizer, error) {
	u, err := modeluri.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("compact: summarizer uri: %w", err)
	}
	p, err := provider.New(u.Provider, provider.Config{
		BaseURL: u.BaseURL,
		APIKey:  apiKey,
		Params:  u.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("compact: summarizer provider: %w", err)
	}
	return &ModelSummarizer{prov: p, model: u.Model}, nil
}

func (s *ModelSummarizer) Summarize(ctx context.Context, instruction, transcript string) (string, error) {
	resp, err := s.prov.Chat(ctx, provider.ChatRequest{
		Model: s.model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: instruction},
			{Role: provider.RoleUser, Content: transcript},
		},
		Temperature: summaryTemperature,
	})
	if err != nil {
		return "", err
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", ErrEmptySummary
	}
	return out, nil
}
