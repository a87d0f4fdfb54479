// Package provider defines the model backend interface and types.
//
// Backends are registered by name and constructed per conversation with
// their own base URL, credentials, and generation parameters, which is
// what a model URI like "deepseek@~:deepseek-chat?temperature=0.7"
// resolves to.
package provider

import (
	"context"
	"time"
)

// Provider is a chat model backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Chat sends a chat request and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Stream sends a chat request and returns a channel of streaming
	// events. The channel is closed when the stream ends.
	Stream(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
}

// Config carries per-instance backend settings.
type Config struct {
	// BaseURL overrides the provider's default endpoint when non-empty.
	BaseURL string

	// APIKey authenticates requests. Optional for local backends.
	APIKey string

	// Timeout bounds non-streaming requests. Zero selects the
	// provider's default.
	Timeout time.Duration

	// Params are generation defaults from the model URI query string
	// (temperature, top_p, max_tokens). Request fields win over them.
	Params map[string]string
}
