// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	v1 "parley/api/v1"
	"parley/internal/config"
	"parley/internal/gateway/handlers"
	"parley/internal/gateway/middleware"
	"parley/internal/gateway/websocket"
	"parley/internal/runner"
	"parley/internal/storage"
	"parley/pkg/logger"
)

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	watcher     *Watcher
	config      *config.Config
	db          *storage.DB
	rateLimiter *middleware.RateLimiter
	apiRouter   *v1.Router
	chatRunner  *runner.Runner
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config, hub *websocket.Hub, db *storage.DB) *Server {
	router := mux.NewRouter()

	rlConfig := middleware.RateLimiterConfig{
		RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
		Burst:             cfg.Gateway.RateLimit.Burst,
		Enabled:           cfg.Gateway.RateLimit.Enabled,
		CleanupInterval:   cfg.Gateway.RateLimit.CleanupInterval,
	}
	if rlConfig.RequestsPerMinute == 0 {
		rlConfig.RequestsPerMinute = 60
	}
	if rlConfig.Burst == 0 {
		rlConfig.Burst = 10
	}
	if rlConfig.CleanupInterval == 0 {
		rlConfig.CleanupInterval = 5 * time.Minute
	}
	rateLimiter := middleware.NewRateLimiter(rlConfig)

	versionConfig := middleware.DefaultVersionConfig()

	// Middleware chain: Recovery -> Logging -> CORS -> RateLimit -> Version
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(cfg.Gateway.CORS.AllowedOrigins)(
				rateLimiter.RateLimit(
					middleware.Version(versionConfig)(router),
				),
			),
		),
	)

	server := &Server{
		httpServer: &http.Server{
			Handler:      handler,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 0, // Disable write timeout for SSE streaming (handled by request context)
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		hub:         hub,
		config:      cfg,
		db:          db,
		rateLimiter: rateLimiter,
	}

	// Note: setupRoutes() is called later via InitializeRoutes() after all dependencies are set

	return server
}

// setupRoutes configures the server routes.
func (s *Server) setupRoutes() {
	s.apiRouter = v1.NewRouter(&v1.RouterDeps{
		Runner: s.chatRunner,
		DB:     s.db,
	})
	s.apiRouter.RegisterRoutes(s.router)

	// WebSocket endpoint
	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})

	// Bare health endpoint for load balancers that do not speak /api/v1
	s.router.HandleFunc("/health", handlers.HealthHandler(v1.Version))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	handlers.InitStartTime()

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	s.httpServer.Addr = addr

	// Start WebSocket hub
	go s.hub.Run()

	logger.Info().
		Str("addr", addr).
		Msg("Starting gateway server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	// Stop watcher if running
	if s.watcher != nil {
		s.watcher.Stop()
	}

	// Stop rate limiter
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}

// IsReady returns true if the server is ready to accept requests.
func (s *Server) IsReady() bool {
	return s.httpServer != nil && s.httpServer.Addr != ""
}

// SetWatcher sets the file watcher for hot reload.
func (s *Server) SetWatcher(w *Watcher) {
	s.watcher = w
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Runner returns the chat runner.
func (s *Server) Runner() *runner.Runner {
	return s.chatRunner
}

// SetRunner sets the chat runner dependency.
func (s *Server) SetRunner(r *runner.Runner) {
	s.chatRunner = r
	// Also update the API router
	if s.apiRouter != nil {
		s.apiRouter.SetRunner(r)
	}

	// Set up WebSocket chat handler
	if s.hub != nil && r != nil {
		s.hub.SetChatHandler(func(sessionID, message string) (<-chan []byte, error) {
			return s.handleWebSocketChat(sessionID, message)
		})
	}
}

// handleWebSocketChat handles a chat message received via WebSocket.
func (s *Server) handleWebSocketChat(sessionID, message string) (<-chan []byte, error) {
	if s.chatRunner == nil {
		return nil, nil
	}

	ctx := context.Background()

	events, err := s.chatRunner.Run(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}

	outChan := make(chan []byte, 100)

	go func() {
		defer close(outChan)

		for event := range events {
			var wsMsg websocket.WSMessage

			switch event.Type {
			case runner.EventTypeContent:
				wsMsg = websocket.WSMessage{
					Type:    websocket.TypeStream,
					Delta:   event.Content,
					Session: sessionID,
				}
			case runner.EventTypeReasoning:
				wsMsg = websocket.WSMessage{
					Type:     websocket.TypeThinking,
					Thinking: event.Reasoning,
					Session:  sessionID,
				}
			case runner.EventTypeDone:
				wsMsg = websocket.WSMessage{
					Type:    websocket.TypeDone,
					Session: sessionID,
				}
			case runner.EventTypeError:
				wsMsg = websocket.WSMessage{
					Type:    websocket.TypeError,
					Message: event.ErrorMsg,
					Session: sessionID,
				}
			default:
				continue
			}

			data, err := json.Marshal(wsMsg)
			if err != nil {
				continue
			}

			select {
			case outChan <- data:
			default:
				// Buffer full, skip event
			}
		}
	}()

	return outChan, nil
}

// InitializeRoutes initializes routes after all dependencies are set.
// This must be called before starting the server.
func (s *Server) InitializeRoutes() {
	s.setupRoutes()
}
