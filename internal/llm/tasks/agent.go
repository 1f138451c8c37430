package tasks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"rehearse/internal/llm"
	"rehearse/pkg/schema"
)

const tracerName = "rehearse/internal/llm/tasks"

// Stage is one step of a session: it reads the state and returns the delta
// to fold into it, plus a report of how the delta was produced.
type Stage interface {
	Name() string
	Run(ctx context.Context, r *Runner, state *schema.State) (schema.Delta, Report)
}

// Runner carries what every stage needs to call the generation backend.
// It holds no session state and is safe to share across sessions.
type Runner struct {
	gen         llm.Generator
	maxAttempts int
	logger      *zap.Logger
	tracer      trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxAttempts sets the attempts per tier for parse and validation retries.
func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		r.maxAttempts = n
	}
}

// WithLogger sets the logger used for recoverable failures.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer overrides the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewRunner creates a Runner over gen.
func NewRunner(gen llm.Generator, opts ...Option) *Runner {
	r := &Runner{
		gen:         gen,
		maxAttempts: llm.DefaultMaxAttempts,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Logger returns the runner's logger.
func (r *Runner) Logger() *zap.Logger {
	return r.logger
}

// Tracer returns the runner's tracer.
func (r *Runner) Tracer() trace.Tracer {
	return r.tracer
}

// Agent describes one generation stage as data. A single interpreter (Run and
// Produce) drives every agent through the same fallback chain:
//
//  1. primary: Prompt with the stage contract
//  2. secondary: FallbackPrompt with the same contract
//  3. minimal: Minimal, no external call
//
// Within tiers 1 and 2, parse, contract and Validate failures are retried
// with the error fed back into the prompt.
type Agent[T any] struct {
	StageName      string
	Contract       *llm.Contract
	Skip           func(*schema.State) bool
	Prompt         func(*schema.State) string
	FallbackPrompt func(*schema.State) string
	Validate       func(*T) error
	Minimal        func(*schema.State) *T
	Merge          func(*schema.State, *T) schema.Delta
}

// Name implements Stage.
func (a *Agent[T]) Name() string {
	return a.StageName
}

// Run implements Stage.
func (a *Agent[T]) Run(ctx context.Context, r *Runner, state *schema.State) (schema.Delta, Report) {
	if a.Skip != nil && a.Skip(state) {
		r.logger.Debug("stage skipped", zap.String("stage", a.StageName))
		return schema.Delta{}, Report{Stage: a.StageName, Tier: TierSkipped}
	}

	out, report := a.Produce(ctx, r, state)
	return a.Merge(state, out), report
}

// Produce runs the fallback chain and returns the typed output. It never
// fails: the minimal tier always yields a value.
func (a *Agent[T]) Produce(ctx context.Context, r *Runner, state *schema.State) (*T, Report) {
	report := Report{Stage: a.StageName}

	ctx, span := r.tracer.Start(ctx, "stage."+a.StageName,
		trace.WithAttributes(attribute.String("stage", a.StageName)),
	)
	defer span.End()

	tiers := []struct {
		tier   Tier
		prompt func(*schema.State) string
	}{
		{TierPrimary, a.Prompt},
		{TierSecondary, a.FallbackPrompt},
	}

	for _, t := range tiers {
		if t.prompt == nil {
			continue
		}

		out, err := llm.GenerateStructured[T](ctx, r.gen, a.Contract, t.prompt(state), r.maxAttempts, a.Validate)
		if err == nil {
			report.Tier = t.tier
			span.SetAttributes(attribute.String("tier", string(t.tier)))
			return out, report
		}

		report.Failures = append(report.Failures, Failure{Tier: t.tier, Err: err, Message: err.Error()})
		span.RecordError(err, trace.WithAttributes(attribute.String("tier", string(t.tier))))
		r.logger.Warn("stage generation failed, falling back",
			zap.String("stage", a.StageName),
			zap.String("tier", string(t.tier)),
			zap.Error(err),
		)
	}

	report.Tier = TierMinimal
	span.SetAttributes(attribute.String("tier", string(TierMinimal)))
	span.SetStatus(codes.Error, "fell back to minimal artifact")
	return a.Minimal(state), report
}
