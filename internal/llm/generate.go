package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Generator is the single boundary to a text-generation backend. It sends
// prompt and returns a JSON document that the backend was asked to shape
// according to contract. Callers still validate the result.
type Generator interface {
	Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	return f(ctx, prompt, contract)
}

// DefaultMaxAttempts is used when GenerateStructured is given no attempt count.
const DefaultMaxAttempts = 3

// GenerateStructured generates a structured output with validation and retry.
// T is the type of the structured output. Each attempt checks the raw output
// against contract, decodes it into T and runs validate (optional). Parse,
// contract and validation failures are fed back into the prompt for the next
// attempt; transport and API failures return immediately.
func GenerateStructured[T any](
	ctx context.Context,
	gen Generator,
	contract *Contract,
	prompt string,
	maxAttempts int,
	validate func(*T) error,
) (*T, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	log := zap.L().With(zap.String("contract", contract.Name))
	originalPrompt := prompt
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, NewTimeoutError("", err)
		}

		log.Debug("LLM generation attempt",
			zap.Int("attempt", attempt),
			zap.Int("prompt_length", len(prompt)),
		)

		result, err := generateOnce[T](ctx, gen, contract, prompt)
		if err == nil && validate != nil {
			if verr := validate(result); verr != nil {
				err = NewValidationError(verr.Error(), verr)
			}
		}
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return nil, err
			}
			log.Warn("LLM output rejected",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			prompt = withFeedback(originalPrompt, err)
			continue
		}

		log.Debug("LLM generation succeeded", zap.Int("attempt", attempt))
		return result, nil
	}

	return nil, fmt.Errorf("validation failed after %d attempts: %w", maxAttempts, lastErr)
}

func generateOnce[T any](ctx context.Context, gen Generator, contract *Contract, prompt string) (*T, error) {
	raw, err := gen.Generate(ctx, prompt, contract)
	if err != nil {
		return nil, err
	}

	if err := contract.Validate(raw); err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewParseError(string(raw), err)
	}
	return &result, nil
}

func withFeedback(prompt string, err error) string {
	return fmt.Sprintf("%s\n\nPREVIOUS ATTEMPT FAILED:\nError: %v\n\nPlease fix the output and return valid JSON matching the exact structure requested.", prompt, err)
}

// decodeContent turns raw model text into a JSON document, stripping the
// markdown fences some models wrap around it.
func decodeContent(content string) (json.RawMessage, error) {
	content = cleanMarkdownCodeBlocks(content)
	if !json.Valid([]byte(content)) {
		return nil, NewParseError(content, fmt.Errorf("model output is not valid JSON"))
	}
	return json.RawMessage(content), nil
}

// cleanMarkdownCodeBlocks removes markdown code block wrappers from JSON.
// Some models (especially Gemini) wrap JSON in ```json...```.
func cleanMarkdownCodeBlocks(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSpace(content)
	}

	if strings.HasSuffix(content, "```") {
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	return content
}
