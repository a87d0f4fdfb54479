// Package chat implements the conversation controller. A Conversation
// owns a message log, routes every turn through a compaction strategy,
// and forwards the strategy's send view to a model backend resolved
// from a model URI.
//
// One conversation is strictly sequential: an internal lock covers the
// whole turn, compaction pass included, so a streaming reply must be
// drained before the next Send proceeds. Independent conversations
// share nothing mutable.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/pkg/compact"
	"parley/pkg/logger"
	"parley/pkg/message"
	"parley/pkg/modeluri"
	"parley/pkg/provider"
)

// Conversation is a chat session bound to one backend model and one
// compaction strategy.
type Conversation struct {
	mu       sync.Mutex
	prov     provider.Provider
	uri      string
	model    string
	strategy compact.Strategy
	system   string
	log      []message.Message
}

type options struct {
	system   string
	strategy compact.Strategy
	timeout  time.Duration
	params   map[string]string
}

// Option configures a Conversation at construction time.
type Option func(*options)

// WithSystemMessage seeds the log with an initial system message. The
// message survives Reset.
func WithSystemMessage(content string) Option {
	return func(o *options) { o.system = content }
}

// WithStrategy selects the compaction strategy. The default transmits
// the full log every turn.
func WithStrategy(s compact.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithHTTPTimeout bounds non-streaming backend requests.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithParam sets a generation parameter ("temperature", "top_p",
// "max_tokens"). It overrides the same key from the URI query string.
func WithParam(key, value string) Option {
	return func(o *options) {
		if o.params == nil {
			o.params = make(map[string]string)
		}
		o.params[key] = value
	}
}

// New builds a conversation from a model URI ("deepseek/deepseek-chat"
// or "ollama@localhost:11434:qwen3:8b?temperature=0.7"). Configuration
// problems, an unknown provider included, surface here and never at
// send time.
func New(modelURI, apiKey string, opts ...Option) (*Conversation, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	u, err := modeluri.Parse(modelURI)
	if err != nil {
		return nil, err
	}

	params := make(map[string]string, len(u.Params)+len(o.params))
	for k, v := range u.Params {
		params[k] = v
	}
	for k, v := range o.params {
		params[k] = v
	}
	if len(params) == 0 {
		params = nil
	}

	prov, err := provider.New(u.Provider, provider.Config{
		BaseURL: u.BaseURL,
		APIKey:  apiKey,
		Timeout: o.timeout,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	strategy := o.strategy
	if strategy == nil {
		strategy = compact.NewNoop()
	}

	c := &Conversation{
		prov:     prov,
		uri:      modelURI,
		model:    u.Model,
		strategy: strategy,
		system:   o.system,
	}
	if o.system != "" {
		c.log = append(c.log, message.NewSystem(o.system))
	}
	return c, nil
}

// ModelURI returns the URI the conversation was built from.
func (c *Conversation) ModelURI() string { return c.uri }

type sendOptions struct {
	role message.Role
}

// SendOption adjusts a single Send or SendStream call.
type SendOption func(*sendOptions)

// SendAs overrides the role of the outgoing message. The default is
// the human role.
func SendAs(role message.Role) SendOption {
	return func(o *sendOptions) { o.role = role }
}

// Send appends the outgoing message, runs the compaction strategy, and
// forwards the resulting view to the backend. The reply is appended to
// the log and returned with usage counters in its metadata.
//
// A strategy failure aborts the turn with the log unchanged, so
// retrying the same Send is safe. A backend failure keeps the outgoing
// message and any markers the strategy inserted.
func (c *Conversation) Send(ctx context.Context, text string, opts ...SendOption) (message.Message, error) {
	out, err := outgoingMessage(text, opts)
	if err != nil {
		return message.Message{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	view, err := c.beginTurn(ctx, out)
	if err != nil {
		return message.Message{}, err
	}

	resp, err := c.prov.Chat(ctx, provider.ChatRequest{
		Model:    c.model,
		Messages: view,
	})
	if err != nil {
		return message.Message{}, err
	}

	reply := replyMessage(resp, c.prov.Name(), c.model)
	c.log = append(c.log, reply)
	return reply, nil
}

// SendStream is Send with a streaming reply. The channel yields
// content and reasoning deltas, then a final chunk carrying the
// assembled message, which is already appended to the log when the
// channel closes. The conversation stays locked until the stream ends;
// the caller must drain the channel.
func (c *Conversation) SendStream(ctx context.Context, text string, opts ...SendOption) (<-chan message.Chunk, error) {
	out, err := outgoingMessage(text, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()

	view, err := c.beginTurn(ctx, out)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	events, err := c.prov.Stream(ctx, provider.ChatRequest{
		Model:    c.model,
		Messages: view,
	})
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	chunks := make(chan message.Chunk, 100)
	go c.forwardStream(ctx, events, chunks)
	return chunks, nil
}

// beginTurn stages the outgoing message, runs the strategy, and
// commits its result. Nothing is committed on a strategy error. Caller
// holds the lock.
func (c *Conversation) beginTurn(ctx context.Context, out message.Message) ([]provider.Message, error) {
	staged := make([]message.Message, 0, len(c.log)+1)
	staged = append(staged, c.log...)
	staged = append(staged, out)

	resp, err := c.strategy.Process(ctx, compact.Request{Messages: staged})
	if err != nil {
		return nil, err
	}
	c.log = resp.Messages

	logger.Debug().
		Str("strategy", c.strategy.Name()).
		Int("log_messages", len(resp.Messages)).
		Int("view_messages", len(resp.SendView)).
		Msg("Turn prepared")

	return toWire(resp.SendView), nil
}

// forwardStream drains backend events into chunks, appends the
// assembled reply, and releases the conversation for the next turn.
func (c *Conversation) forwardStream(ctx context.Context, events <-chan provider.ChatEvent, chunks chan<- message.Chunk) {
	defer c.mu.Unlock()
	defer close(chunks)

	acc := provider.NewStreamAccumulator()
	for event := range events {
		select {
		case <-ctx.Done():
			chunks <- message.Chunk{Err: ctx.Err()}
			return
		default:
		}

		if err := acc.Add(event); err != nil {
			chunks <- message.Chunk{Err: err}
			return
		}

		switch event.Type {
		case provider.EventTypeContent:
			chunks <- message.Chunk{Content: event.Delta}
		case provider.EventTypeThinking:
			chunks <- message.Chunk{ReasoningContent: event.Thinking}
		}
	}

	resp := acc.Response()
	if resp.Content == "" && resp.ReasoningContent == "" && len(resp.ToolCalls) == 0 {
		// The stream delivered nothing; keep the log free of empty replies.
		return
	}

	reply := replyMessage(resp, c.prov.Name(), c.model)
	c.log = append(c.log, reply)
	chunks <- message.Chunk{Final: true, Message: &reply}
}

func outgoingMessage(text string, opts []SendOption) (message.Message, error) {
	so := sendOptions{role: message.RoleHuman}
	for _, opt := range opts {
		opt(&so)
	}

	switch so.role {
	case message.RoleHuman:
		return message.NewHuman(text), nil
	case message.RoleAI:
		return message.NewAI(text), nil
	case message.RoleSystem:
		return message.NewSystem(text), nil
	case message.RoleTool:
		return message.NewTool(text), nil
	}
	return message.Message{}, fmt.Errorf("chat: cannot send as role %q", so.role)
}
