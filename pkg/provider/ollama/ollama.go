package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"parley/pkg/logger"
	"parley/pkg/provider"
)

// Compile-time interface check.
var _ provider.Provider = (*Client)(nil)

// Error definitions.
var (
	ErrConnectionFailed = errors.New("failed to connect to Ollama server")
	ErrModelNotFound    = errors.New("model not found")
	ErrInvalidResponse  = errors.New("invalid response from Ollama")
	ErrRequestTimeout   = errors.New("request timeout")
)

func init() {
	provider.Register("ollama", func(cfg provider.Config) (provider.Provider, error) {
		return New(cfg)
	})
}

// Client implements the Provider interface for Ollama.
type Client struct {
	endpoint    string
	keepAlive   string
	temperature float64
	topP        float64
	maxTokens   int
	httpClient  *http.Client
}

// New creates an Ollama client. Ollama needs no API key; the base URL
// defaults to the local daemon.
func New(cfg provider.Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		endpoint:  strings.TrimRight(strings.TrimSpace(base), "/"),
		keepAlive: DefaultKeepAlive,
		httpClient: &http.Client{
			Timeout: timeout,
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
				return fmt.Errorf("ollama: invalid temperature %q", val)
			}
			c.temperature = f
		case "top_p":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("ollama: invalid top_p %q", val)
			}
			c.topP = f
		case "max_tokens":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("ollama: invalid max_tokens %q", val)
			}
			c.maxTokens = n
		case "keep_alive":
			c.keepAlive = val
		default:
			logger.Warn().Str("provider", "ollama").Str("param", key).Msg("Ignoring unknown model parameter")
		}
	}
	return nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "ollama"
}

// Chat sends a chat completion request and returns the response.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	ollamaReq := c.buildRequest(req, false)

	logger.Debug().Str("provider", "ollama").Str("model", ollamaReq.Model).Msg("Chat request")

	resp, err := c.doRequest(ctx, ollamaReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Ollama error response")
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		logger.Error().Err(err).Str("body", string(body)).Msg("Failed to parse Ollama response")
		return nil, ErrInvalidResponse
	}
	if ollamaResp.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", ollamaResp.Error)
	}

	return convertResponse(&ollamaResp), nil
}

// Stream sends a streaming chat completion request.
func (c *Client) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ollamaReq := c.buildRequest(req, true)

	logger.Debug().Str("provider", "ollama").Str("model", ollamaReq.Model).
		Int("message_count", len(ollamaReq.Messages)).
		Msg("Stream request")

	resp, err := c.doRequest(ctx, ollamaReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	return processStream(resp.Body), nil
}

// buildRequest converts a provider.ChatRequest to an Ollama request.
func (c *Client) buildRequest(req provider.ChatRequest, stream bool) *ollamaRequest {
	hasTools := len(req.Tools) > 0

	ollamaReq := &ollamaRequest{
		Model:     req.Model,
		Messages:  make([]ollamaMessage, 0, len(req.Messages)),
		Stream:    stream,
		KeepAlive: c.keepAlive,
	}

	for _, msg := range req.Messages {
		// Skip tool traffic when the request carries no tools, e.g. when
		// replaying history against a model without tool support
		if !hasTools {
			if msg.Role == provider.RoleTool {
				continue
			}
			if msg.Role == provider.RoleAssistant && len(msg.ToolCalls) > 0 && msg.Content == "" {
				continue
			}
		}

		ollamaMsg := ollamaMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		if hasTools {
			for _, tc := range msg.ToolCalls {
				otc := ollamaToolCall{
					ID:   tc.ID,
					Type: "function",
				}
				otc.Function.Name = tc.Name
				// Ollama expects arguments as a JSON object, not a string
				otc.Function.Arguments = make(map[string]interface{})
				if tc.Arguments != "" {
					var argsMap map[string]interface{}
					if err := json.Unmarshal([]byte(tc.Arguments), &argsMap); err == nil {
						otc.Function.Arguments = argsMap
					}
				}
				ollamaMsg.ToolCalls = append(ollamaMsg.ToolCalls, otc)
			}
		}

		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMsg)
	}

	if hasTools {
		for _, tool := range req.Tools {
			ollamaReq.Tools = append(ollamaReq.Tools, ollamaTool{
				Type: tool.Type,
				Function: ollamaToolFunction{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			})
		}
	}

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if temperature > 0 || maxTokens > 0 || c.topP > 0 {
		ollamaReq.Options = &ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
			TopP:        c.topP,
		}
	}

	return ollamaReq
}

// doRequest sends an HTTP request to the Ollama API.
func (c *Client) doRequest(ctx context.Context, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.endpoint + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return resp, nil
}

// handleErrorResponse converts an error response to an appropriate error.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if statusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrModelNotFound, errResp.Error)
		}
		return fmt.Errorf("ollama error: %s", errResp.Error)
	}

	switch statusCode {
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusServiceUnavailable:
		return ErrConnectionFailed
	default:
		return fmt.Errorf("ollama returned status %d: %s", statusCode, string(body))
	}
}

// convertResponse converts an Ollama response to a provider response.
func convertResponse(resp *ollamaResponse) *provider.ChatResponse {
	result := &provider.ChatResponse{
		Content:      resp.Message.Content,
		FinishReason: provider.FinishReasonStop,
	}

	for _, tc := range resp.Message.ToolCalls {
		var argsStr string
		if tc.Function.Arguments != nil {
			if argsBytes, err := json.Marshal(tc.Function.Arguments); err == nil {
				argsStr = string(argsBytes)
			}
		}
		result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Type:      "function",
			Name:      tc.Function.Name,
			Arguments: argsStr,
		})
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = provider.FinishReasonToolCalls
	}

	// Usage comes from eval counts
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}

	return result
}
