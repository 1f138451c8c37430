package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const providerAnthropic = "anthropic"

// MessagesClient captures the subset of the Anthropic SDK client used by
// AnthropicGenerator. It is satisfied by *sdk.MessageService so callers can
// pass either a real SDK client or a stub in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicGenerator is the generation backend for the Anthropic Messages API.
type AnthropicGenerator struct {
	msg       MessagesClient
	model     string
	maxTokens int64
}

// NewAnthropicGenerator builds a backend on top of an existing messages client.
func NewAnthropicGenerator(msg MessagesClient, model string, maxTokens int) (*AnthropicGenerator, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if model == "" {
		return nil, errors.New("anthropic model is required")
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicGenerator{msg: msg, model: model, maxTokens: int64(maxTokens)}, nil
}

// NewAnthropicFromConfig constructs a backend using the default Anthropic
// HTTP client.
func NewAnthropicFromConfig(config *Config) (*AnthropicGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.SetDefaults()

	ac := sdk.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithRequestTimeout(config.Timeout),
		option.WithMaxRetries(0),
	)
	return NewAnthropicGenerator(&ac.Messages, config.DefaultModel, config.MaxTokens)
}

// Generate implements Generator with a single Messages.New call.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: g.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(contract.Render(prompt))),
		},
	}

	msg, err := g.msg.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, NewAPIError(providerAnthropic, apiErr.StatusCode, apiErr.Error())
		}
		if isTimeout(ctx, err) {
			return nil, NewTimeoutError(providerAnthropic, err)
		}
		return nil, NewNetworkError(providerAnthropic, err)
	}
	if msg == nil {
		return nil, NewAPIError(providerAnthropic, 0, "response message is nil")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, NewAPIError(providerAnthropic, 0, "no text content in response")
	}

	return decodeContent(sb.String())
}
