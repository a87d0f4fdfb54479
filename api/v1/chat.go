package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"parley/internal/gateway/handlers"
	"parley/internal/runner"
	"parley/pkg/logger"
)

// streamTimeout bounds a single streamed turn, slow summarization included.
const streamTimeout = 30 * time.Minute

// HandleChat handles chat requests. The response is a single JSON body,
// or an SSE stream when the request sets the stream flag.
func (r *Router) HandleChat(w http.ResponseWriter, req *http.Request) {
	chatReq, ok := r.decodeChatRequest(w, req)
	if !ok {
		return
	}

	if chatReq.Stream {
		r.streamChat(w, req, chatReq)
		return
	}

	ctx := req.Context()

	sessionID := chatReq.SessionID
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	events, err := r.runner.Run(ctx, sessionID, chatReq.Message)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	var message, reasoning string
	var usage *Usage

	for event := range events {
		switch event.Type {
		case runner.EventTypeContent:
			message += event.Content
		case runner.EventTypeReasoning:
			reasoning += event.Reasoning
		case runner.EventTypeDone:
			usage = wireUsage(event.Usage)
		case runner.EventTypeError:
			handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, event.ErrorMsg)
			return
		}
	}

	handlers.SendJSON(w, http.StatusOK, ChatResponse{
		SessionID: sessionID,
		Message:   message,
		Reasoning: reasoning,
		Usage:     usage,
	})
}

// HandleChatStream handles streaming chat requests using SSE.
func (r *Router) HandleChatStream(w http.ResponseWriter, req *http.Request) {
	chatReq, ok := r.decodeChatRequest(w, req)
	if !ok {
		return
	}

	r.streamChat(w, req, chatReq)
}

// decodeChatRequest validates the request body and the runner dependency.
func (r *Router) decodeChatRequest(w http.ResponseWriter, req *http.Request) (ChatRequest, bool) {
	var chatReq ChatRequest
	if err := json.NewDecoder(req.Body).Decode(&chatReq); err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return chatReq, false
	}

	if chatReq.Message == "" {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Message is required")
		return chatReq, false
	}

	if r.runner == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Runner not available")
		return chatReq, false
	}

	return chatReq, true
}

// streamChat runs a turn and writes the events as SSE.
func (r *Router) streamChat(w http.ResponseWriter, req *http.Request, chatReq ChatRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Streaming not supported")
		return
	}

	sessionID := chatReq.SessionID
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	ctx, cancel := context.WithTimeout(req.Context(), streamTimeout)
	defer cancel()

	events, err := r.runner.Run(ctx, sessionID, chatReq.Message)
	if err != nil {
		sendSSEError(w, flusher, err)
		return
	}

	var usage *Usage

	for event := range events {
		var sseEvent ChatStreamEvent

		switch event.Type {
		case runner.EventTypeContent:
			sseEvent = ChatStreamEvent{
				Type:  "content",
				Delta: event.Content,
			}
		case runner.EventTypeReasoning:
			sseEvent = ChatStreamEvent{
				Type:     "thinking",
				Thinking: event.Reasoning,
			}
		case runner.EventTypeError:
			sseEvent = ChatStreamEvent{
				Type:  "error",
				Error: event.ErrorMsg,
			}
		case runner.EventTypeDone:
			// Skip the internal done event, we send our own after the loop
			usage = wireUsage(event.Usage)
			continue
		default:
			continue
		}

		data, _ := json.Marshal(sseEvent)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Error().Err(err).Msg("Failed to write SSE event to client")
			return
		}
		flusher.Flush()
	}

	doneEvent := ChatStreamEvent{
		Type:      "done",
		SessionID: sessionID,
		Usage:     usage,
	}
	data, _ := json.Marshal(doneEvent)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// sendSSEError sends an error event via SSE.
func sendSSEError(w http.ResponseWriter, flusher http.Flusher, err error) {
	errEvent := ChatStreamEvent{
		Type:  "error",
		Error: err.Error(),
	}

	data, _ := json.Marshal(errEvent)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// wireUsage converts runner usage to its wire form.
func wireUsage(u *runner.Usage) *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
