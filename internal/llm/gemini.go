package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

// ModelsClient captures the subset of the GenAI SDK used by GeminiGenerator.
// It is satisfied by *genai.Models.
type ModelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator is the generation backend for the Gemini API. The contract
// schema is passed as the response JSON schema so the model is constrained
// server-side as well as by the prompt.
type GeminiGenerator struct {
	models ModelsClient
	model  string
}

// NewGeminiGenerator builds a backend on top of an existing models client.
func NewGeminiGenerator(models ModelsClient, model string) (*GeminiGenerator, error) {
	if models == nil {
		return nil, errors.New("gemini models client is required")
	}
	if model == "" {
		return nil, errors.New("gemini model is required")
	}
	return &GeminiGenerator{models: models, model: model}, nil
}

// NewGeminiFromConfig constructs a backend using the Gemini API client.
func NewGeminiFromConfig(ctx context.Context, config *Config) (*GeminiGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.SetDefaults()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: config.BaseURL,
			Timeout: &config.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return NewGeminiGenerator(client.Models, config.DefaultModel)
}

// Generate implements Generator with a single GenerateContent call.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: contract.SchemaMap(),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(contract.Render(prompt)), config)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, NewTimeoutError(providerGemini, err)
		}
		return nil, NewNetworkError(providerGemini, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewAPIError(providerGemini, 0, "no candidates in response")
	}

	return decodeContent(resp.Text())
}
