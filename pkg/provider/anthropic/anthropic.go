package anthropic

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
	provider.Register("anthropic", func(cfg provider.Config) (provider.Provider, error) {
		return New(cfg)
	})
}

// Client implements the Provider interface for the Messages API.
type Client struct {
	endpoint     string
	apiKey       string
	temperature  *float64
	topP         *float64
	maxTokens    int
	httpClient   *http.Client // For non-streaming requests (has overall timeout)
	streamClient *http.Client // For streaming requests (no body read timeout)
}

// New creates an Anthropic client.
func New(cfg provider.Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
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
func (c *Client) applyParams(params map[string]string) error {
	for key, val := range params {
		switch key {
		case "temperature":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("anthropic: invalid temperature %q", val)
			}
			c.temperature = &f
		case "top_p":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("anthropic: invalid top_p %q", val)
			}
			c.topP = &f
		case "max_tokens":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("anthropic: invalid max_tokens %q", val)
			}
			c.maxTokens = n
		default:
			logger.Warn().Str("provider", "anthropic").Str("param", key).Msg("Ignoring unknown model parameter")
		}
	}
	return nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Chat sends a messages request and returns the response.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	msgReq := c.buildRequest(req, false)

	logger.Debug().Str("provider", "anthropic").Str("model", msgReq.Model).Msg("Chat request")

	resp, err := c.doRequest(ctx, c.httpClient, msgReq, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error().Str("provider", "anthropic").Int("status", resp.StatusCode).
			Str("body", string(body)).Msg("Chat error response")
		return nil, c.handleErrorResponse(resp.StatusCode, resp.Header, body)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		logger.Error().Err(err).Str("provider", "anthropic").Msg("Failed to parse chat response")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if msgResp.Error != nil {
		return nil, fmt.Errorf("anthropic API error: [%s] %s", msgResp.Error.Type, msgResp.Error.Message)
	}

	return convertResponse(&msgResp), nil
}

// Stream sends a streaming messages request.
func (c *Client) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	msgReq := c.buildRequest(req, true)

	logger.Debug().Str("provider", "anthropic").Str("model", msgReq.Model).
		Int("message_count", len(msgReq.Messages)).
		Msg("Stream request")

	resp, err := c.doRequest(ctx, c.streamClient, msgReq, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, resp.Header, body)
	}

	return processStream(resp.Body), nil
}

// buildRequest converts a provider.ChatRequest to Messages API format.
// System messages move to the top-level system field, tool results
// become tool_result blocks on user messages.
func (c *Client) buildRequest(req provider.ChatRequest, stream bool) *messagesRequest {
	msgReq := &messagesRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
		Stream:   stream,
		TopP:     c.topP,
	}

	if req.Temperature > 0 {
		temp := req.Temperature
		msgReq.Temperature = &temp
	} else {
		msgReq.Temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	msgReq.MaxTokens = maxTokens

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case provider.RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
		case provider.RoleTool:
			msgReq.Messages = append(msgReq.Messages, chatMessage{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		case provider.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				msgReq.Messages = append(msgReq.Messages, chatMessage{Role: "assistant", Content: msg.Content})
				continue
			}
			blocks := make([]contentBlock, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			msgReq.Messages = append(msgReq.Messages, chatMessage{Role: "assistant", Content: blocks})
		default:
			msgReq.Messages = append(msgReq.Messages, chatMessage{Role: "user", Content: msg.Content})
		}
	}
	msgReq.System = strings.Join(system, "\n\n")

	for _, tool := range req.Tools {
		schema := tool.Function.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		msgReq.Tools = append(msgReq.Tools, chatTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}

	return msgReq
}

// doRequest sends a Messages API request over the given client.
func (c *Client) doRequest(ctx context.Context, client *http.Client, body interface{}, stream bool) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.endpoint + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", DefaultVersion)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return resp, nil
}

// handleErrorResponse converts an HTTP error response to an appropriate error.
func (c *Client) handleErrorResponse(statusCode int, header http.Header, body []byte) error {
	message := strings.TrimSpace(string(body))
	var errResp messagesResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		message = errResp.Error.Message
	}
	lowerMsg := strings.ToLower(message)

	// Context window exceeded
	if strings.Contains(lowerMsg, "prompt is too long") ||
		strings.Contains(lowerMsg, "context window") ||
		strings.Contains(lowerMsg, "maximum context") ||
		strings.Contains(lowerMsg, "too many tokens") {
		return &provider.ProviderError{
			Code:     provider.ErrCodeContextWindowExceeded,
			Message:  message,
			Provider: "anthropic",
		}
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &provider.ProviderError{
			Code:     provider.ErrCodeAuthFailed,
			Message:  message,
			Provider: "anthropic",
		}
	case http.StatusNotFound:
		return &provider.ProviderError{
			Code:     provider.ErrCodeModelNotFound,
			Message:  message,
			Provider: "anthropic",
		}
	case http.StatusTooManyRequests:
		pe := &provider.ProviderError{
			Code:      provider.ErrCodeRateLimited,
			Message:   message,
			Provider:  "anthropic",
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
			Provider: "anthropic",
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, statusOverloaded:
		return &provider.ProviderError{
			Code:      provider.ErrCodeServiceUnavailable,
			Message:   message,
			Provider:  "anthropic",
			Retryable: true,
		}
	default:
		return fmt.Errorf("anthropic returned status %d: %s", statusCode, message)
	}
}

// convertResponse converts a Messages API response to a provider response.
func convertResponse(resp *messagesResponse) *provider.ChatResponse {
	result := &provider.ChatResponse{
		FinishReason: normalizeStopReason(resp.StopReason),
	}

	var content strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
				ID:        block.ID,
				Type:      "function",
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	result.Content = content.String()

	if len(result.ToolCalls) > 0 {
		result.FinishReason = provider.FinishReasonToolCalls
	}

	if resp.Usage != nil {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}

	return result
}

// normalizeStopReason maps Messages API stop reasons to provider values.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return provider.FinishReasonStop
	case "max_tokens":
		return provider.FinishReasonLength
	case "tool_use":
		return provider.FinishReasonToolCalls
	default:
		return provider.FinishReasonStop
	}
}
