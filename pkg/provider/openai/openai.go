package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parley/pkg/logger"
	"parley/pkg/provider"
)

// Compile-time interface check.
var _ provider.Provider = (*Client)(nil)

// Error definitions.
var (
	ErrConnectionFailed = errors.New("failed to connect to server")
	ErrInvalidResponse  = errors.New("invalid response")
	ErrRequestTimeout   = errors.New("request timeout")
)

func init() {
	for name, base := range defaultBaseURLs {
		provider.Register(name, func(cfg provider.Config) (provider.Provider, error) {
			return New(name, base, cfg)
		})
	}
}

// Client implements the Provider interface for OpenAI-compatible APIs.
type Client struct {
	name         string
	endpoint     string
	apiKey       string
	temperature  *float64
	topP         *float64
	maxTokens    int
	httpClient   *http.Client // For non-streaming requests (has overall timeout)
	streamClient *http.Client // For streaming requests (no body read timeout)
}

// New creates a client for the named backend. cfg.BaseURL overrides
// defaultBase, and generation defaults are taken from cfg.Params.
func New(name, defaultBase string, cfg provider.Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBase
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		name:     name,
		endpoint: strings.TrimRight(strings.TrimSpace(base), "/"),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		// streamClient has no overall timeout. http.Client.Timeout includes
		// response body read time, which kills long-running SSE streams, so
		// only transport-level connection timeouts apply here.
		streamClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: timeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
	if err := c.applyParams(cfg.Params); err != nil {
		return nil, err
	}
	return c, nil
}

// applyParams parses generation defaults from the model URI parameters.
// Request fields win over these at send time.
func (c *Client) applyParams(params map[string]string) error {
	for key, val := range params {
		switch key {
		case "temperature":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("%s: invalid temperature %q", c.name, val)
			}
			c.temperature = &f
		case "top_p":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("%s: invalid top_p %q", c.name, val)
			}
			c.topP = &f
		case "max_tokens":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s: invalid max_tokens %q", c.name, val)
			}
			c.maxTokens = n
		default:
			logger.Warn().Str("provider", c.name).Str("param", key).Msg("Ignoring unknown model parameter")
		}
	}
	return nil
}

// Name returns the backend name the client was constructed for.
func (c *Client) Name() string {
	return c.name
}

// Chat sends a chat completion request and returns the response.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	chatReq := c.buildRequest(req, false)

	logger.Debug().Str("provider", c.name).Str("model", chatReq.Model).Msg("Chat request")

	resp, err := c.doRequest(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error().Str("provider", c.name).Int("status", resp.StatusCode).
			Str("body", string(body)).Msg("Chat error response")
		return nil, c.handleErrorResponse(resp.StatusCode, resp.Header, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		logger.Error().Err(err).Str("provider", c.name).Msg("Failed to parse chat response")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("%s API error: [%s] %s", c.name, chatResp.Error.Type, chatResp.Error.Message)
	}

	return c.convertResponse(&chatResp), nil
}

// Stream sends a streaming chat completion request.
func (c *Client) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	chatReq := c.buildRequest(req, true)

	logger.Debug().Str("provider", c.name).Str("model", chatReq.Model).
		Int("message_count", len(chatReq.Messages)).
		Msg("Stream request")

	resp, err := c.doStreamRequest(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, resp.Header, body)
	}

	return processStream(c.name, resp.Body), nil
}

// buildRequest converts a provider.ChatRequest to the wire format,
// filling in generation defaults where the request leaves fields zero.
func (c *Client) buildRequest(req provider.ChatRequest, stream bool) *chatRequest {
	hasTools := len(req.Tools) > 0

	chatReq := &chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
		Stream:   stream,
		TopP:     c.topP,
	}

	if req.Temperature > 0 {
		temp := req.Temperature
		chatReq.Temperature = &temp
	} else {
		chatReq.Temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		chatReq.MaxTokens = maxTokens
	}

	for _, msg := range req.Messages {
		// Skip tool-related messages if no tools requested
		if !hasTools {
			if msg.Role == provider.RoleTool {
				continue
			}
			if msg.Role == provider.RoleAssistant && len(msg.ToolCalls) > 0 && msg.Content == "" {
				continue
			}
		}

		content := msg.Content
		chatMsg := chatMessage{
			Role:       msg.Role,
			Content:    &content,
			ToolCallID: msg.ToolCallID,
		}

		if hasTools {
			for _, tc := range msg.ToolCalls {
				chatMsg.ToolCalls = append(chatMsg.ToolCalls, chatToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: chatToolFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}

		chatReq.Messages = append(chatReq.Messages, chatMsg)
	}

	if hasTools {
		for _, tool := range req.Tools {
			chatReq.Tools = append(chatReq.Tools, chatTool{
				Type: tool.Type,
				Function: chatFunction{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			})
		}
	}

	return chatReq
}

// doRequest sends a chat completion request over the blocking client.
func (c *Client) doRequest(ctx context.Context, body interface{}) (*http.Response, error) {
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return resp, nil
}

// doStreamRequest sends a streaming request over the stream client.
func (c *Client) doStreamRequest(ctx context.Context, body interface{}) (*http.Response, error) {
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, body interface{}) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.endpoint + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return req, nil
}

// handleErrorResponse converts an HTTP error response to an appropriate error.
func (c *Client) handleErrorResponse(statusCode int, header http.Header, body []byte) error {
	message := strings.TrimSpace(string(body))
	var errResp chatResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		message = errResp.Error.Message
	}
	lowerMsg := strings.ToLower(message)

	// Context window exceeded
	if strings.Contains(lowerMsg, "context length") ||
		strings.Contains(lowerMsg, "context window") ||
		strings.Contains(lowerMsg, "maximum context") ||
		strings.Contains(lowerMsg, "too many tokens") {
		return &provider.ProviderError{
			Code:     provider.ErrCodeContextWindowExceeded,
			Message:  message,
			Provider: c.name,
		}
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &provider.ProviderError{
			Code:     provider.ErrCodeAuthFailed,
			Message:  message,
			Provider: c.name,
		}
	case http.StatusNotFound:
		return &provider.ProviderError{
			Code:     provider.ErrCodeModelNotFound,
			Message:  message,
			Provider: c.name,
		}
	case http.StatusTooManyRequests:
		pe := &provider.ProviderError{
			Code:      provider.ErrCodeRateLimited,
			Message:   message,
			Provider:  c.name,
			Retryable: true,
		}
		if secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); err == nil && secs > 0 {
			pe.RetryAfter = time.Duration(secs) * time.Second
		}
		return pe
	case http.StatusBadRequest:
		return &provider.ProviderError{
			Code:     provider.ErrCodeInvalidRequest,
			Message:  message,
			Provider: c.name,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &provider.ProviderError{
			Code:      provider.ErrCodeServiceUnavailable,
			Message:   message,
			Provider:  c.name,
			Retryable: true,
		}
	default:
		return fmt.Errorf("%s returned status %d: %s", c.name, statusCode, message)
	}
}

// convertResponse converts an OpenAI-compatible response to a provider response.
func (c *Client) convertResponse(resp *chatResponse) *provider.ChatResponse {
	result := &provider.ChatResponse{
		FinishReason: provider.FinishReasonStop,
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Content != nil {
			result.Content = *choice.Message.Content
		}
		result.ReasoningContent = choice.Message.ReasoningContent

		for _, tc := range choice.Message.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
				ID:        tc.ID,
				Type:      "function",
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}

		switch choice.FinishReason {
		case "stop":
			result.FinishReason = provider.FinishReasonStop
		case "tool_calls":
			result.FinishReason = provider.FinishReasonToolCalls
		case "length":
			result.FinishReason = provider.FinishReasonLength
		}
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = provider.FinishReasonToolCalls
	}

	if resp.Usage != nil {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return result
}
