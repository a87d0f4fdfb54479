package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parley/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestClient_Name(t *testing.T) {
	c, err := New("deepseek", "https://api.deepseek.com", provider.Config{})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", c.Name())
}

func TestRegisteredBackends(t *testing.T) {
	for name := range defaultBaseURLs {
		p, err := provider.New(name, provider.Config{})
		require.NoError(t, err, "backend %s", name)
		assert.Equal(t, name, p.Name())
	}
}

func TestClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "Hello", *req.Messages[1].Content)

		resp := chatResponse{
			ID:    "chatcmpl-1",
			Model: "test-model",
			Choices: []chatChoice{{
				Message:      chatMessage{Role: "assistant", Content: strPtr("Hi there!")},
				FinishReason: "stop",
			}},
			Usage: &chatUsage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := New("openai", server.URL, provider.Config{APIKey: "test-key"})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), provider.ChatRequest{
		Model: "test-model",
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "You are helpful"},
			{Role: provider.RoleUser, Content: "Hello"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi there!", resp.Content)
	assert.Equal(t, provider.FinishReasonStop, resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 4, resp.Usage.CompletionTokens)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestClient_ChatWithTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)

		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "get_weather", req.Tools[0].Function.Name)

		resp := chatResponse{
			Choices: []chatChoice{{
				Message: chatMessage{
					Role:    "assistant",
					Content: strPtr(""),
					ToolCalls: []chatToolCall{{
						ID:   "call_123",
						Type: "function",
						Function: chatToolFunction{
							Name:      "get_weather",
							Arguments: `{"city":"Paris"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := New("openai", server.URL, provider.Config{})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), provider.ChatRequest{
		Model:    "test-model",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "What's the weather?"}},
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
	assert.Equal(t, `{"city":"Paris"}`, resp.ToolCalls[0].Arguments)
}

func TestClient_ChatError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		headers    map[string]string
		response   string
		wantCode   provider.ErrorCode
		retryable  bool
	}{
		{
			name:       "auth failed",
			statusCode: http.StatusUnauthorized,
			response:   `{"error":{"message":"Invalid API key","type":"invalid_request_error"}}`,
			wantCode:   provider.ErrCodeAuthFailed,
		},
		{
			name:       "model not found",
			statusCode: http.StatusNotFound,
			response:   `{"error":{"message":"The model does not exist","type":"invalid_request_error"}}`,
			wantCode:   provider.ErrCodeModelNotFound,
		},
		{
			name:       "rate limited",
			statusCode: http.StatusTooManyRequests,
			headers:    map[string]string{"Retry-After": "7"},
			response:   `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`,
			wantCode:   provider.ErrCodeRateLimited,
			retryable:  true,
		},
		{
			name:       "context window exceeded",
			statusCode: http.StatusBadRequest,
			response:   `{"error":{"message":"This model's maximum context length is 8192 tokens","type":"invalid_request_error"}}`,
			wantCode:   provider.ErrCodeContextWindowExceeded,
		},
		{
			name:       "invalid request",
			statusCode: http.StatusBadRequest,
			response:   `{"error":{"message":"Missing model parameter","type":"invalid_request_error"}}`,
			wantCode:   provider.ErrCodeInvalidRequest,
		},
		{
			name:       "service unavailable",
			statusCode: http.StatusServiceUnavailable,
			response:   `{"error":{"message":"The server is overloaded","type":"server_error"}}`,
			wantCode:   provider.ErrCodeServiceUnavailable,
			retryable:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			c, err := New("openai", server.URL, provider.Config{})
			require.NoError(t, err)

			_, err = c.Chat(context.Background(), provider.ChatRequest{
				Model:    "test-model",
				Messages: []provider.Message{{Role: provider.RoleUser, Content: "test"}},
			})

			require.Error(t, err)
			var pe *provider.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantCode, pe.Code)
			assert.Equal(t, tt.retryable, pe.Retryable)
		})
	}
}

func TestClient_ChatRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	c, err := New("openai", server.URL, provider.Config{})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), provider.ChatRequest{
		Model:    "m",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "test"}},
	})

	var pe *provider.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 30*time.Second, pe.RetryAfter)
	assert.True(t, provider.IsRetryable(err))
}

func TestClient_ContextWindowDetection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Input exceeds the context window of this model","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	c, err := New("openai", server.URL, provider.Config{})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), provider.ChatRequest{
		Model:    "m",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "test"}},
	})

	assert.True(t, provider.IsContextWindowExceeded(err))
}

func TestClient_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2,\"total_tokens\":5}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	c, err := New("openai", server.URL, provider.Config{})
	require.NoError(t, err)

	events, err := c.Stream(context.Background(), provider.ChatRequest{
		Model:    "test-model",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "Hello"}},
	})
	require.NoError(t, err)

	var content strings.Builder
	var done bool
	var usage *provider.Usage
	for event := range events {
		switch event.Type {
		case provider.EventTypeContent:
			content.WriteString(event.Delta)
		case provider.EventTypeDone:
			done = true
			if event.Usage != nil {
				usage = event.Usage
			}
		}
	}

	assert.Equal(t, "Hello", content.String())
	assert.True(t, done)
	require.NotNil(t, usage)
	assert.Equal(t, 5, usage.TotalTokens)
}

func TestProcessStream_Reasoning(t *testing.T) {
	sseData := `data: {"choices":[{"delta":{"reasoning_content":"Let me think."}}]}

data: {"choices":[{"delta":{"content":"42"}}]}

data: [DONE]

`
	r := io.NopCloser(strings.NewReader(sseData))
	events := processStream("deepseek", r)

	var collected []provider.ChatEvent
	for event := range events {
		collected = append(collected, event)
	}

	require.Len(t, collected, 3)
	assert.Equal(t, provider.EventTypeThinking, collected[0].Type)
	assert.Equal(t, "Let me think.", collected[0].Thinking)
	assert.Equal(t, provider.EventTypeContent, collected[1].Type)
	assert.Equal(t, "42", collected[1].Delta)
	assert.Equal(t, provider.EventTypeDone, collected[2].Type)
}

func TestProcessStream_ToolCalls(t *testing.T) {
	sseData := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"go\"}"}}]}}]}

data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}

data: [DONE]

`
	r := io.NopCloser(strings.NewReader(sseData))
	events := processStream("openai", r)

	var collected []provider.ChatEvent
	for event := range events {
		collected = append(collected, event)
	}

	require.Len(t, collected, 3)
	assert.Equal(t, provider.EventTypeToolCall, collected[0].Type)
	require.NotNil(t, collected[0].ToolCall)
	assert.Equal(t, "call_1", collected[0].ToolCall.ID)
	assert.Equal(t, "lookup", collected[0].ToolCall.Name)
	assert.Equal(t, provider.EventTypeDone, collected[1].Type)
	assert.Equal(t, "tool_calls", collected[1].FinishReason)
}

func TestProcessStream_InlineError(t *testing.T) {
	sseData := `data: {"error":{"message":"stream broke","type":"server_error"}}

`
	r := io.NopCloser(strings.NewReader(sseData))
	events := processStream("openai", r)

	var collected []provider.ChatEvent
	for event := range events {
		collected = append(collected, event)
	}

	require.Len(t, collected, 1)
	assert.Equal(t, provider.EventTypeError, collected[0].Type)
	require.Error(t, collected[0].Error)
	assert.Contains(t, collected[0].Error.Error(), "stream broke")
}

func TestBuildRequest_ParamDefaults(t *testing.T) {
	c, err := New("openai", "https://api.openai.com/v1", provider.Config{
		Params: map[string]string{
			"temperature": "0.3",
			"top_p":       "0.9",
			"max_tokens":  "512",
		},
	})
	require.NoError(t, err)

	req := c.buildRequest(provider.ChatRequest{
		Model:    "gpt-4",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	}, false)

	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.3, *req.Temperature)
	require.NotNil(t, req.TopP)
	assert.Equal(t, 0.9, *req.TopP)
	assert.Equal(t, 512, req.MaxTokens)
}

func TestBuildRequest_RequestOverridesParams(t *testing.T) {
	c, err := New("openai", "https://api.openai.com/v1", provider.Config{
		Params: map[string]string{"temperature": "0.3", "max_tokens": "512"},
	})
	require.NoError(t, err)

	req := c.buildRequest(provider.ChatRequest{
		Model:       "gpt-4",
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		Temperature: 0.8,
		MaxTokens:   64,
	}, false)

	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.8, *req.Temperature)
	assert.Equal(t, 64, req.MaxTokens)
}

func TestBuildRequest_SkipsDanglingToolMessages(t *testing.T) {
	c, err := New("openai", "https://api.openai.com/v1", provider.Config{})
	require.NoError(t, err)

	req := c.buildRequest(provider.ChatRequest{
		Model: "gpt-4",
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: "hi"},
			{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "f"}}},
			{Role: provider.RoleTool, Content: "result", ToolCallID: "c1"},
			{Role: provider.RoleAssistant, Content: "done"},
		},
	}, false)

	// Without tools in the request, tool traffic is dropped
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
}

func TestNew_InvalidParams(t *testing.T) {
	_, err := New("openai", "https://api.openai.com/v1", provider.Config{
		Params: map[string]string{"temperature": "hot"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}

func TestNew_BaseURLOverride(t *testing.T) {
	c, err := New("openai", "https://api.openai.com/v1", provider.Config{
		BaseURL: "http://localhost:8080/v1/",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", c.endpoint)
}
