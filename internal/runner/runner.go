// Package runner owns the live conversations behind gateway and CLI
// sessions. Each session id maps to one chat.Conversation; the
// conversation's in-memory log stays authoritative while the process
// runs and is written back to storage after every turn, so compaction
// markers survive restarts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"parley/internal/config"
	"parley/internal/storage"
	"parley/pkg/chat"
	"parley/pkg/logger"
	"parley/pkg/message"
)

// Runner manages per-session conversations.
type Runner struct {
	store *storage.DB

	mu    sync.Mutex
	cfg   *config.Config
	convs map[string]*chat.Conversation
}

// NewRunner creates a Runner backed by the given store and config.
func NewRunner(store *storage.DB, cfg *config.Config) *Runner {
	return &Runner{
		store: store,
		cfg:   cfg,
		convs: make(map[string]*chat.Conversation),
	}
}

// Run sends text into the session's conversation and streams the turn
// as events. An unknown session id starts a new session. The returned
// channel is closed when the turn ends; the caller must drain it.
func (r *Runner) Run(ctx context.Context, sessionID, text string) (<-chan Event, error) {
	conv, err := r.conversation(sessionID, true, titleFrom(text))
	if err != nil {
		return nil, err
	}

	chunks, err := conv.SendStream(ctx, text)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 100)
	go r.forward(sessionID, conv, chunks, events)
	return events, nil
}

// Ask sends text into the session's conversation and blocks for the
// complete reply. An unknown session id starts a new session.
func (r *Runner) Ask(ctx context.Context, sessionID, text string) (message.Message, error) {
	conv, err := r.conversation(sessionID, true, titleFrom(text))
	if err != nil {
		return message.Message{}, err
	}

	reply, err := conv.Send(ctx, text)
	// The log may have changed even on failure: the outgoing message and
	// any markers stay committed once the strategy succeeded.
	r.persist(sessionID, conv)
	if err != nil {
		return message.Message{}, err
	}
	return reply, nil
}

// History returns the session's transcript, restoring it from storage
// when the session is not live. Unknown sessions yield
// storage.ErrNotFound.
func (r *Runner) History(sessionID string) ([]message.Message, error) {
	conv, err := r.conversation(sessionID, false, "")
	if err != nil {
		return nil, err
	}
	return conv.History(), nil
}

// Stats returns the session's conversation statistics.
func (r *Runner) Stats(sessionID string) (chat.Stats, error) {
	conv, err := r.conversation(sessionID, false, "")
	if err != nil {
		return chat.Stats{}, err
	}
	return conv.Stats(), nil
}

// Reset clears the session's transcript back to its system seed and
// persists the cleared state.
func (r *Runner) Reset(sessionID string) error {
	conv, err := r.conversation(sessionID, false, "")
	if err != nil {
		return err
	}
	conv.Reset()
	r.persist(sessionID, conv)
	return nil
}

// Drop evicts the live conversation for a session, if any. Deleting a
// session from storage must also forget its in-memory state.
func (r *Runner) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, sessionID)
}

// UpdateConfig swaps the config used for new conversations. Live
// conversations keep the provider and strategy they were built with.
func (r *Runner) UpdateConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// conversation returns the live conversation for a session, restoring
// it from storage or, when create is set, starting a new session.
func (r *Runner) conversation(sessionID string, create bool, title string) (*chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, ok := r.convs[sessionID]; ok {
		return conv, nil
	}

	sess, err := r.store.GetSession(sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		if !create {
			return nil, err
		}
		if _, err := r.store.CreateSessionWithID(sessionID, title, r.cfg.Model.URI, r.cfg.Context.Strategy); err != nil {
			return nil, fmt.Errorf("runner: create session: %w", err)
		}
		conv, err := r.newConversation(r.cfg.Model.URI, "")
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("session_id", sessionID).Msg("Session started")
		r.convs[sessionID] = conv
		return conv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runner: load session: %w", err)
	}

	conv, err := r.newConversation(sess.ModelURI, sess.Strategy)
	if err != nil {
		return nil, err
	}

	rows, err := r.store.GetMessages(sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("runner: load messages: %w", err)
	}
	if len(rows) > 0 {
		msgs, err := chatMessages(rows)
		if err != nil {
			return nil, err
		}
		// The stored transcript carries its own system seed; drop the
		// fresh one before restoring.
		conv.Clear()
		if err := conv.AddMessages(msgs...); err != nil {
			return nil, err
		}
	}

	logger.Debug().Str("session_id", sessionID).Int("messages", len(rows)).Msg("Session restored")
	r.convs[sessionID] = conv
	return conv, nil
}

func (r *Runner) newConversation(modelURI, strategyName string) (*chat.Conversation, error) {
	if modelURI == "" {
		modelURI = r.cfg.Model.URI
	}

	strategy, err := buildStrategy(r.cfg, strategyName)
	if err != nil {
		return nil, err
	}

	opts := []chat.Option{chat.WithStrategy(strategy)}
	if r.cfg.Model.SystemPrompt != "" {
		opts = append(opts, chat.WithSystemMessage(r.cfg.Model.SystemPrompt))
	}
	if t := r.cfg.Model.GetTimeout(); t > 0 {
		opts = append(opts, chat.WithHTTPTimeout(t))
	}
	for k, v := range r.cfg.Model.Params {
		opts = append(opts, chat.WithParam(k, v))
	}

	return chat.New(modelURI, r.cfg.Model.APIKey, opts...)
}

// forward relays stream chunks as events, persists the transcript once
// the stream ends, and closes the event channel.
func (r *Runner) forward(sessionID string, conv *chat.Conversation, chunks <-chan message.Chunk, events chan<- Event) {
	defer close(events)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Str("session_id", sessionID).Interface("panic", rec).Msg("Turn panicked")
			events <- NewErrorEvent(fmt.Errorf("runner: panic: %v", rec))
		}
	}()

	var final *message.Message
	failed := false

	for chunk := range chunks {
		var evt Event
		switch {
		case chunk.Err != nil:
			failed = true
			evt = NewErrorEvent(chunk.Err)
		case chunk.Final:
			final = chunk.Message
			continue
		case chunk.ReasoningContent != "":
			evt = NewReasoningEvent(chunk.ReasoningContent)
		case chunk.Content != "":
			evt = NewContentEvent(chunk.Content)
		default:
			continue
		}
		evt.SessionID = sessionID
		events <- evt
	}

	r.persist(sessionID, conv)

	if failed {
		return
	}

	done := NewDoneEvent(usageFrom(final))
	done.SessionID = sessionID
	events <- done
}

// persist writes the session's full transcript back to storage.
// Persistence failures are logged, not surfaced: the in-memory log is
// the source of truth and the turn already happened.
func (r *Runner) persist(sessionID string, conv *chat.Conversation) {
	rows, err := storageMessages(sessionID, conv.History())
	if err != nil {
		logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to encode transcript")
		return
	}
	if err := r.store.ReplaceMessages(sessionID, rows); err != nil {
		logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to persist transcript")
	}
}

// titleFrom derives a session title from the first message text.
func titleFrom(text string) string {
	title := strings.TrimSpace(text)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	runes := []rune(title)
	if len(runes) > 50 {
		title = string(runes[:50])
	}
	return title
}

func usageFrom(final *message.Message) *Usage {
	if final == nil || final.Metadata == nil {
		return nil
	}
	raw, ok := final.Metadata[message.MetaUsage].(map[string]any)
	if !ok {
		return nil
	}
	return &Usage{
		PromptTokens:     usageInt(raw, "prompt_tokens"),
		CompletionTokens: usageInt(raw, "completion_tokens"),
		TotalTokens:      usageInt(raw, "total_tokens"),
	}
}

// usageInt tolerates the numeric types JSON decoding produces.
func usageInt(meta map[string]any, key string) int {
	switch n := meta[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
