package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const providerOpenRouter = "openrouter"

// Client is the generation backend for OpenRouter (OpenAI-compatible chat
// completions).
type Client struct {
	config *Config
	http   *http.Client
}

// NewClient creates a new OpenRouter client.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config.SetDefaults()

	return &Client{
		config: config,
		http: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// OpenRouterRequest represents a request to OpenRouter (OpenAI-compatible).
type OpenRouterRequest struct {
	Model          string          `json:"model"`
	Messages       []OpenRouterMsg `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// OpenRouterMsg represents a message in the conversation.
type OpenRouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the model for output matching a JSON Schema.
type ResponseFormat struct {
	Type       string             `json:"type"`
	JSONSchema ResponseJSONSchema `json:"json_schema"`
}

// ResponseJSONSchema is the schema payload of a ResponseFormat.
type ResponseJSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// OpenRouterResponse represents a response from OpenRouter.
type OpenRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Generate implements Generator with a single chat completion call.
func (c *Client) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	reqBody := OpenRouterRequest{
		Model: c.config.DefaultModel,
		Messages: []OpenRouterMsg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: contract.Render(prompt)},
		},
		ResponseFormat: &ResponseFormat{
			Type: "json_schema",
			JSONSchema: ResponseJSONSchema{
				Name:   contract.Name,
				Strict: true,
				Schema: contract.Schema,
			},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	log := zap.L().With(zap.String("provider", providerOpenRouter), zap.String("contract", contract.Name))

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		log.Error("OpenRouter HTTP request failed",
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		if isTimeout(ctx, err) {
			return nil, NewTimeoutError(providerOpenRouter, err)
		}
		return nil, NewNetworkError(providerOpenRouter, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn("Failed to close response body", zap.Error(err))
		}
	}()

	log.Debug("OpenRouter HTTP request completed",
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		if _, err := errBody.ReadFrom(resp.Body); err != nil {
			return nil, NewAPIError(providerOpenRouter, resp.StatusCode, fmt.Sprintf("status %d (failed to read error body)", resp.StatusCode))
		}
		return nil, NewAPIError(providerOpenRouter, resp.StatusCode, errBody.String())
	}

	var openrouterResp OpenRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&openrouterResp); err != nil {
		return nil, NewAPIError(providerOpenRouter, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}

	if openrouterResp.Error != nil {
		return nil, NewAPIError(providerOpenRouter, 0, openrouterResp.Error.Message)
	}

	if len(openrouterResp.Choices) == 0 {
		return nil, NewAPIError(providerOpenRouter, 0, "no choices in response")
	}

	return decodeContent(openrouterResp.Choices[0].Message.Content)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
