package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"parley/internal/config"
	"parley/internal/gateway/websocket"
	"parley/internal/runner"
	"parley/internal/storage"
	"parley/pkg/provider"
)

type fakeBackend struct {
	name   string
	events []provider.ChatEvent
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{Content: "ok"}, nil
}

func (f *fakeBackend) Stream(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func registerBackend(name string, f *fakeBackend) *fakeBackend {
	f.name = name
	provider.Register(name, func(cfg provider.Config) (provider.Provider, error) {
		return f, nil
	})
	return f
}

func testConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

func TestNewServer(t *testing.T) {
	hub := websocket.NewHub()
	server := NewServer(testConfig(), hub, nil)

	if server == nil {
		t.Fatal("NewServer returned nil")
	}

	if server.router == nil { //nolint:staticcheck // SA5011: Check above ensures non-nil
		t.Error("router is nil")
	}

	if server.hub != hub { //nolint:staticcheck // SA5011: Check above ensures non-nil
		t.Error("hub not set correctly")
	}

	if server.rateLimiter == nil { //nolint:staticcheck // SA5011: server checked above
		t.Error("rateLimiter is nil")
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	hub := websocket.NewHub()
	server := NewServer(testConfig(), hub, nil)
	server.InitializeRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}

func TestServerBareHealthEndpoint(t *testing.T) {
	hub := websocket.NewHub()
	server := NewServer(testConfig(), hub, nil)
	server.InitializeRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestServerShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.Port = 0 // Random port

	hub := websocket.NewHub()
	server := NewServer(cfg, hub, nil)
	server.InitializeRoutes()

	// Start server in background
	go func() {
		_ = server.Start()
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	ctx := context.Background()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
}

func TestServerRouter(t *testing.T) {
	hub := websocket.NewHub()
	server := NewServer(testConfig(), hub, nil)

	if server.Router() == nil {
		t.Error("Router() returned nil")
	}
}

func TestServerHub(t *testing.T) {
	hub := websocket.NewHub()
	server := NewServer(testConfig(), hub, nil)

	if server.Hub() != hub {
		t.Error("Hub() returned wrong hub")
	}
}

func TestServerWebSocketChat(t *testing.T) {
	registerBackend("gwchat", &fakeBackend{events: []provider.ChatEvent{
		{Type: provider.EventTypeContent, Delta: "Hel"},
		{Type: provider.EventTypeContent, Delta: "lo"},
		{Type: provider.EventTypeDone, Usage: &provider.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3}},
	}})

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	cfg.Model = config.ModelConfig{URI: "gwchat/model"}
	cfg.Context = config.ContextConfig{Strategy: "noop"}

	hub := websocket.NewHub()
	server := NewServer(cfg, hub, db)
	server.InitializeRoutes()
	server.SetRunner(runner.NewRunner(db, cfg))

	frames, err := hub.HandleChat("ws-sess", "hi")
	if err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	if frames == nil {
		t.Fatal("HandleChat returned nil channel")
	}

	var delta string
	var sawDone bool
	for frame := range frames {
		var msg websocket.WSMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		switch msg.Type {
		case websocket.TypeStream:
			delta += msg.Delta
			if msg.Session != "ws-sess" {
				t.Errorf("session = %q, want ws-sess", msg.Session)
			}
		case websocket.TypeDone:
			sawDone = true
		}
	}

	if delta != "Hello" {
		t.Errorf("delta = %q, want Hello", delta)
	}
	if !sawDone {
		t.Error("no done frame")
	}
}

func TestServerWebSocketChat_NoRunner(t *testing.T) {
	hub := websocket.NewHub()
	server := NewServer(testConfig(), hub, nil)

	frames, err := server.handleWebSocketChat("sess", "hi")
	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
	if frames != nil {
		t.Error("expected nil channel without a runner")
	}
}
