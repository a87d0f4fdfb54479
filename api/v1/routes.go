package v1

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"parley/internal/gateway/handlers"
	"parley/internal/runner"
	"parley/internal/storage"
)

// Version is the server version reported by the health endpoint.
const Version = "0.1.0"

// RouterDeps holds dependencies for the v1 API router.
type RouterDeps struct {
	Runner *runner.Runner
	DB     *storage.DB
}

// Router wraps v1 API dependencies.
type Router struct {
	runner *runner.Runner
	db     *storage.DB
}

// NewRouter creates a new v1 API router.
func NewRouter(deps *RouterDeps) *Router {
	if deps == nil {
		deps = &RouterDeps{}
	}
	return &Router{
		runner: deps.Runner,
		db:     deps.DB,
	}
}

// SetRunner updates the runner dependency.
func (r *Router) SetRunner(runner *runner.Runner) {
	r.runner = runner
}

// RegisterRoutes registers all v1 API routes.
func (r *Router) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Health
	v1.HandleFunc("/health", r.HandleHealth).Methods(http.MethodGet)

	// Chat
	v1.HandleFunc("/chat", r.HandleChat).Methods(http.MethodPost)
	v1.HandleFunc("/chat/stream", r.HandleChatStream).Methods(http.MethodPost)

	// Sessions
	v1.HandleFunc("/sessions", r.HandleListSessions).Methods(http.MethodGet)
	v1.HandleFunc("/sessions", r.HandleCreateSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}", r.HandleGetSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", r.HandleUpdateSession).Methods(http.MethodPut)
	v1.HandleFunc("/sessions/{id}", r.HandleDeleteSession).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{id}/messages", r.HandleGetMessages).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/stats", r.HandleGetStats).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/reset", r.HandleResetSession).Methods(http.MethodPost)
}

// HandleHealth returns the health status of the API.
func (r *Router) HandleHealth(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]ComponentHealth)

	if r.db != nil {
		if err := r.db.Ping(); err != nil {
			components["database"] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
		} else {
			components["database"] = ComponentHealth{Status: "healthy"}
		}
	} else {
		components["database"] = ComponentHealth{Status: "disabled"}
	}

	if r.runner != nil {
		components["runner"] = ComponentHealth{Status: "healthy"}
	} else {
		components["runner"] = ComponentHealth{Status: "disabled"}
	}

	status := "healthy"
	for _, comp := range components {
		if comp.Status == "unhealthy" {
			status = "degraded"
			break
		}
	}

	handlers.SendJSON(w, http.StatusOK, HealthResponse{
		Status:     status,
		Version:    Version,
		Timestamp:  time.Now().Format(time.RFC3339),
		Components: components,
	})
}

// generateSessionID creates a fresh session identifier.
func generateSessionID() string {
	return "sess_" + randomString(16)
}

// randomString generates a random alphanumeric string of the given length.
func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}
