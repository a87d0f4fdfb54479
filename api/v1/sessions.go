package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"parley/internal/config"
	"parley/internal/gateway/handlers"
	"parley/internal/storage"
)

// HandleListSessions returns a list of sessions, most recently active first.
func (r *Router) HandleListSessions(w http.ResponseWriter, req *http.Request) {
	if r.db == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database not available")
		return
	}

	rows, err := r.db.ListSessions(100, 0)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to query sessions")
		return
	}

	sessions := make([]SessionSummary, 0, len(rows))
	for _, s := range rows {
		count, err := r.db.CountMessages(s.ID)
		if err != nil {
			continue
		}
		sessions = append(sessions, SessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			ModelURI:     s.ModelURI,
			Strategy:     s.Strategy,
			MessageCount: count,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
		})
	}

	handlers.SendJSON(w, http.StatusOK, SessionsListResponse{Sessions: sessions})
}

// HandleCreateSession creates a new session.
func (r *Router) HandleCreateSession(w http.ResponseWriter, req *http.Request) {
	if r.db == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database not available")
		return
	}

	// Body is optional, defaults come from config
	var body CreateSessionRequest
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}

	modelURI := body.ModelURI
	if modelURI == "" {
		modelURI = config.GetString("model.uri")
	}
	strategy := body.Strategy
	if strategy == "" {
		strategy = config.GetString("context.strategy")
	}

	sess, err := r.db.CreateSessionWithID(generateSessionID(), body.Title, modelURI, strategy)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to create session")
		return
	}

	handlers.SendJSON(w, http.StatusCreated, CreateSessionResponse{
		ID:        sess.ID,
		ModelURI:  sess.ModelURI,
		Strategy:  sess.Strategy,
		CreatedAt: sess.CreatedAt,
	})
}

// HandleGetSession returns details of a specific session.
func (r *Router) HandleGetSession(w http.ResponseWriter, req *http.Request) {
	if r.db == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database not available")
		return
	}

	id := mux.Vars(req)["id"]

	sess, err := r.db.GetSession(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to query session")
		return
	}

	count, _ := r.db.CountMessages(id)

	handlers.SendJSON(w, http.StatusOK, SessionSummary{
		ID:           sess.ID,
		Title:        sess.Title,
		ModelURI:     sess.ModelURI,
		Strategy:     sess.Strategy,
		MessageCount: count,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	})
}

// HandleUpdateSession renames a session.
func (r *Router) HandleUpdateSession(w http.ResponseWriter, req *http.Request) {
	if r.db == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database not available")
		return
	}

	var body UpdateSessionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if body.Title == "" {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Title is required")
		return
	}

	id := mux.Vars(req)["id"]

	if err := r.db.UpdateSessionTitle(id, body.Title); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to update session")
		return
	}

	handlers.SendJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Session updated"})
}

// HandleDeleteSession deletes a session and its transcript.
func (r *Router) HandleDeleteSession(w http.ResponseWriter, req *http.Request) {
	if r.db == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database not available")
		return
	}

	id := mux.Vars(req)["id"]

	if err := r.db.DeleteSession(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to delete session")
		return
	}

	// The stored rows are gone; forget the live conversation too
	if r.runner != nil {
		r.runner.Drop(id)
	}

	handlers.SendJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Session deleted"})
}

// HandleGetMessages returns the stored transcript for a session,
// compaction markers included.
func (r *Router) HandleGetMessages(w http.ResponseWriter, req *http.Request) {
	if r.db == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database not available")
		return
	}

	id := mux.Vars(req)["id"]

	if _, err := r.db.GetSession(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to query session")
		return
	}

	rows, err := r.db.GetMessages(id, 0)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to query messages")
		return
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, wireMessage(row))
	}

	handlers.SendJSON(w, http.StatusOK, MessagesListResponse{Messages: messages})
}

// HandleGetStats returns conversation statistics for a session.
func (r *Router) HandleGetStats(w http.ResponseWriter, req *http.Request) {
	if r.runner == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Runner not available")
		return
	}

	id := mux.Vars(req)["id"]

	stats, err := r.runner.Stats(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to compute stats")
		return
	}

	handlers.SendJSON(w, http.StatusOK, StatsResponse{
		SessionID:     id,
		TotalMessages: stats.TotalMessages,
		ByRole:        stats.ByRole,
		TotalTokens:   stats.TotalTokens,
		InputTokens:   stats.InputTokens,
		OutputTokens:  stats.OutputTokens,
	})
}

// HandleResetSession clears a session's transcript back to its system seed.
func (r *Router) HandleResetSession(w http.ResponseWriter, req *http.Request) {
	if r.runner == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Runner not available")
		return
	}

	id := mux.Vars(req)["id"]

	if err := r.runner.Reset(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to reset session")
		return
	}

	handlers.SendJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Session reset"})
}

// wireMessage converts a stored message row to its wire form.
func wireMessage(row *storage.Message) Message {
	m := Message{
		ID:        row.ID,
		Role:      row.Role,
		Content:   row.Content,
		Reasoning: row.ReasoningContent,
		CreatedAt: row.CreatedAt,
	}

	if len(row.ToolCalls) > 0 {
		_ = json.Unmarshal(row.ToolCalls, &m.ToolCalls)
	}

	if row.Role == "context" && len(row.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(row.Metadata, &meta); err == nil {
			marker := &MarkerInfo{}
			if t, ok := meta["type"].(string); ok {
				marker.Type = t
			}
			// JSON numbers decode as float64
			if n, ok := meta["summarized_count"].(float64); ok {
				marker.SummarizedCount = int(n)
			}
			if n, ok := meta["pruned_from_marker"].(float64); ok {
				marker.PrunedFrom = int(n)
			}
			if marker.Type != "" {
				m.Marker = marker
			}
		}
	}

	return m
}
