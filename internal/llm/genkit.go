package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitGenerator registers a backend as a Genkit model and routes every
// generation through it, so calls appear in Genkit traces alongside the
// session flows.
type GenkitGenerator struct {
	model ai.Model

	mu        sync.RWMutex
	contracts map[string]*Contract
}

// NewGenkitGenerator defines model name (for example "rehearse/openrouter")
// on g, backed by backend.
func NewGenkitGenerator(g *genkit.Genkit, name, label string, backend Generator) *GenkitGenerator {
	gg := &GenkitGenerator{contracts: make(map[string]*Contract)}

	gg.model = genkit.DefineModel(
		g,
		name,
		&ai.ModelOptions{
			Label: label,
			Supports: &ai.ModelSupports{
				Multiturn:  true,
				SystemRole: true,
			},
		},
		func(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
			contract, err := gg.contractFor(req.Config)
			if err != nil {
				return nil, err
			}
			raw, err := backend.Generate(ctx, requestText(req), contract)
			if err != nil {
				return nil, err
			}
			return &ai.ModelResponse{
				Request: req,
				Message: &ai.Message{
					Role: ai.RoleModel,
					Content: []*ai.Part{
						ai.NewTextPart(string(raw)),
					},
				},
			}, nil
		},
	)

	return gg
}

// Generate implements Generator by invoking the registered model.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	gg.mu.Lock()
	gg.contracts[contract.Name] = contract
	gg.mu.Unlock()

	resp, err := gg.model.Generate(ctx, &ai.ModelRequest{
		Messages: []*ai.Message{
			{
				Role: ai.RoleUser,
				Content: []*ai.Part{
					ai.NewTextPart(prompt),
				},
			},
		},
		Config: map[string]any{"contract": contract.Name},
	}, nil)
	if err != nil {
		return nil, err
	}

	return decodeContent(resp.Text())
}

func (gg *GenkitGenerator) contractFor(config any) (*Contract, error) {
	var name string
	switch c := config.(type) {
	case *Contract:
		return c, nil
	case map[string]any:
		name, _ = c["contract"].(string)
	}
	if name == "" {
		return nil, NewAPIError("genkit", 0, "model request carries no contract")
	}

	gg.mu.RLock()
	defer gg.mu.RUnlock()
	contract, ok := gg.contracts[name]
	if !ok {
		return nil, NewAPIError("genkit", 0, fmt.Sprintf("unknown contract %s", name))
	}
	return contract, nil
}

func requestText(req *ai.ModelRequest) string {
	var sb strings.Builder
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.IsText() {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}
