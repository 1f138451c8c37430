package core

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"rehearse/internal/llm/tasks"
	"rehearse/pkg/schema"
)

// RefineKind selects which artifact a draft is refined into.
type RefineKind string

const (
	RefineScenario RefineKind = "scenario"
	RefinePersona  RefineKind = "persona"
)

// RefineResult holds the structured artifact produced from a draft. Exactly
// one of Scenario and Persona is set, matching Kind.
type RefineResult struct {
	Kind     RefineKind       `json:"kind" yaml:"kind"`
	Scenario *schema.Scenario `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Persona  *schema.Persona  `json:"persona,omitempty" yaml:"persona,omitempty"`
	Report   tasks.Report     `json:"report" yaml:"-"`
}

// Refine rewrites a trainer's free-text draft into a structured scenario or
// persona. It reads and writes no session state, so it can run before any
// session exists.
func (o *Orchestrator) Refine(ctx context.Context, kind RefineKind, draft string) (*RefineResult, error) {
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return nil, &ValidationError{Field: "draft", Message: "draft must not be empty"}
	}

	ctx, span := o.tracer.Start(ctx, "session.refine",
		trace.WithAttributes(attribute.String("refine.kind", string(kind))),
	)
	defer span.End()

	result := &RefineResult{Kind: kind}
	switch kind {
	case RefineScenario:
		result.Scenario, result.Report = tasks.RefineScenario(draft).Produce(ctx, o.runner, nil)
	case RefinePersona:
		result.Persona, result.Report = tasks.RefinePersona(draft).Produce(ctx, o.runner, nil)
	default:
		return nil, &ValidationError{Field: "kind", Message: "must be scenario or persona, got " + string(kind)}
	}

	o.logger.Info("draft refined",
		zap.String("kind", string(kind)),
		zap.String("tier", string(result.Report.Tier)),
	)
	return result, nil
}
