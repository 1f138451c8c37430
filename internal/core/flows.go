package core

import (
	"context"

	gcore "github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"

	"rehearse/pkg/schema"
)

// ContinueInput is the input of the continueSession flow.
type ContinueInput struct {
	State     *schema.State `json:"state"`
	Utterance string        `json:"utterance"`
}

// EndInput is the input of the endSession flow.
type EndInput struct {
	State *schema.State `json:"state"`
}

// RefineInput is the input of the refine flow.
type RefineInput struct {
	Kind  RefineKind `json:"kind"`
	Draft string     `json:"draft"`
}

// Flows exposes the session triggers as genkit flows so they can be run
// from the genkit developer tooling as well as from code.
type Flows struct {
	Start    *gcore.Flow[schema.SessionConfig, *Outcome, struct{}]
	Continue *gcore.Flow[ContinueInput, *Outcome, struct{}]
	End      *gcore.Flow[EndInput, *Outcome, struct{}]
	Refine   *gcore.Flow[RefineInput, *RefineResult, struct{}]
}

// DefineFlows registers the startSession, continueSession, endSession and
// refine flows on g.
func DefineFlows(g *genkit.Genkit, o *Orchestrator) *Flows {
	return &Flows{
		Start: genkit.DefineFlow(g, "startSession",
			func(ctx context.Context, cfg schema.SessionConfig) (*Outcome, error) {
				return o.StartSession(ctx, cfg)
			}),
		Continue: genkit.DefineFlow(g, "continueSession",
			func(ctx context.Context, in ContinueInput) (*Outcome, error) {
				return o.ContinueSession(ctx, in.State, in.Utterance)
			}),
		End: genkit.DefineFlow(g, "endSession",
			func(ctx context.Context, in EndInput) (*Outcome, error) {
				return o.EndSession(ctx, in.State)
			}),
		Refine: genkit.DefineFlow(g, "refine",
			func(ctx context.Context, in RefineInput) (*RefineResult, error) {
				return o.Refine(ctx, in.Kind, in.Draft)
			}),
	}
}
