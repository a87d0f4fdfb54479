package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parley/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Name(t *testing.T) {
	c, err := New(provider.Config{})
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())
}

func TestClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ollamaRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "Hello", req.Messages[0].Content)

		resp := ollamaResponse{
			Model:           "test-model",
			CreatedAt:       time.Now().Format(time.RFC3339),
			Message:         ollamaMessage{Role: "assistant", Content: "Hello! How can I help you?"},
			Done:            true,
			PromptEvalCount: 5,
			EvalCount:       10,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := New(provider.Config{BaseURL: server.URL, Timeout: 10 * time.Second})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), provider.ChatRequest{
		Model:    "test-model",
		Messages: []provider.Message{{Role: "user", Content: "Hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you?", resp.Content)
	assert.Equal(t, provider.FinishReasonStop, resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 5, resp.Usage.PromptTokens)
	assert.Equal(t, 10, resp.Usage.CompletionTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestClient_ChatWithTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)

		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "get_weather", req.Tools[0].Function.Name)

		tc := ollamaToolCall{ID: "call_123", Type: "function"}
		tc.Function.Name = "get_weather"
		tc.Function.Arguments = map[string]interface{}{"location": "San Francisco"}

		resp := ollamaResponse{
			Model: "test-model",
			Message: ollamaMessage{
				Role:      "assistant",
				Content:   "",
				ToolCalls: []ollamaToolCall{tc},
			},
			Done: true,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := New(provider.Config{BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), provider.ChatRequest{
		Model:    "test-model",
		Messages: []provider.Message{{Role: "user", Content: "What's the weather?"}},
		Tools: []provider.Tool{{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "get_weather",
				Description: "Get the weather",
				Parameters:  json.RawMessage(`{"type":"object"}`),
			},
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, provider.FinishReasonToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_123", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"location":"San Francisco"}`, resp.ToolCalls[0].Arguments)
}

func TestClient_ChatError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		response   string
		wantErr    error
	}{
		{
			name:       "model not found",
			statusCode: http.StatusNotFound,
			response:   `{"error": "model 'unknown' not found"}`,
			wantErr:    ErrModelNotFound,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			response:   `{"error": "internal error"}`,
			wantErr:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			c, err := New(provider.Config{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = c.Chat(context.Background(), provider.ChatRequest{
				Model:    "test-model",
				Messages: []provider.Message{{Role: "user", Content: "test"}},
			})

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestClient_ConnectionFailed(t *testing.T) {
	c, err := New(provider.Config{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 1 * time.Second,
	})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), provider.ChatRequest{
		Model:    "test-model",
		Messages: []provider.Message{{Role: "user", Content: "test"}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestBuildRequest(t *testing.T) {
	c, err := New(provider.Config{})
	require.NoError(t, err)

	req := provider.ChatRequest{
		Model: "custom-model",
		Messages: []provider.Message{
			{Role: "system", Content: "You are helpful"},
			{Role: "user", Content: "Hello"},
		},
		Temperature: 0.7,
		MaxTokens:   100,
	}

	ollamaReq := c.buildRequest(req, true)

	assert.Equal(t, "custom-model", ollamaReq.Model)
	assert.True(t, ollamaReq.Stream)
	assert.Equal(t, DefaultKeepAlive, ollamaReq.KeepAlive)
	assert.Len(t, ollamaReq.Messages, 2)
	require.NotNil(t, ollamaReq.Options)
	assert.Equal(t, 0.7, ollamaReq.Options.Temperature)
	assert.Equal(t, 100, ollamaReq.Options.NumPredict)
}

func TestBuildRequest_ParamDefaults(t *testing.T) {
	c, err := New(provider.Config{
		Params: map[string]string{
			"temperature": "0.4",
			"top_p":       "0.9",
			"keep_alive":  "10m",
		},
	})
	require.NoError(t, err)

	ollamaReq := c.buildRequest(provider.ChatRequest{
		Model:    "qwen3:8b",
		Messages: []provider.Message{{Role: "user", Content: "Hello"}},
	}, false)

	assert.Equal(t, "10m", ollamaReq.KeepAlive)
	require.NotNil(t, ollamaReq.Options)
	assert.Equal(t, 0.4, ollamaReq.Options.Temperature)
	assert.Equal(t, 0.9, ollamaReq.Options.TopP)
}

func TestNew_InvalidParams(t *testing.T) {
	_, err := New(provider.Config{
		Params: map[string]string{"max_tokens": "lots"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens")
}
