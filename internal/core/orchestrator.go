package core

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"rehearse/internal/llm"
	"rehearse/internal/llm/tasks"
	"rehearse/pkg/schema"
)

const tracerName = "rehearse/internal/core"

// StageSessionReady is the local step that marks a session ready.
const StageSessionReady = "session_ready"

// Outcome is the result of one trigger. State is the session after the
// trigger, Delta is what the trigger changed relative to the prior state.
type Outcome struct {
	State   *schema.State  `json:"state"`
	Delta   schema.Delta   `json:"delta"`
	Reports []tasks.Report `json:"reports"`
	Route   Route          `json:"route"`
}

// Degraded returns the reports of stages that fell back past their primary prompt.
func (o *Outcome) Degraded() []tasks.Report {
	var out []tasks.Report
	for _, r := range o.Reports {
		if r.Degraded() {
			out = append(out, r)
		}
	}
	return out
}

// Orchestrator drives sessions through the stage graph. It holds no
// per-session state: every trigger takes the prior state and returns the
// next one, so one Orchestrator serves any number of concurrent sessions.
type Orchestrator struct {
	runner *tasks.Runner
	logger *zap.Logger
	tracer trace.Tracer
	rules  []Rule

	scenario *tasks.Agent[schema.Scenario]
	persona  *tasks.Agent[schema.Persona]
	guest    *tasks.Agent[tasks.GuestOutput]
	scoring  *tasks.Agent[tasks.ScoringOutput]
	feedback *tasks.Agent[schema.Feedback]
}

type options struct {
	logger      *zap.Logger
	tracer      trace.Tracer
	maxTurns    int
	maxAttempts int
}

// Option configures an Orchestrator.
type Option func(*options)

// WithLogger sets the logger for the orchestrator and its stages.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer overrides the tracer for trigger and stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithMaxTurns sets the guest-turn limit after which a session completes.
func WithMaxTurns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

// WithMaxAttempts sets the attempts per fallback tier.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// NewOrchestrator creates an orchestrator over a generation backend.
func NewOrchestrator(gen llm.Generator, opts ...Option) *Orchestrator {
	o := options{
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
		maxTurns:    DefaultMaxTurns,
		maxAttempts: llm.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Orchestrator{
		runner: tasks.NewRunner(gen,
			tasks.WithLogger(o.logger),
			tasks.WithTracer(o.tracer),
			tasks.WithMaxAttempts(o.maxAttempts),
		),
		logger:   o.logger,
		tracer:   o.tracer,
		rules:    DefaultRules(o.maxTurns),
		scenario: tasks.ScenarioGeneration(),
		persona:  tasks.PersonaGeneration(),
		guest:    tasks.GuestSimulation(),
		scoring:  tasks.SilentScoring(),
		feedback: tasks.FeedbackGeneration(),
	}
}

// invocation accumulates one trigger's progress.
type invocation struct {
	state   *schema.State
	delta   schema.Delta
	reports []tasks.Report
}

func (inv *invocation) apply(d schema.Delta, report tasks.Report) {
	inv.state = schema.Apply(inv.state, d)
	inv.delta = inv.delta.Merge(d)
	inv.reports = append(inv.reports, report)
}

func (inv *invocation) outcome(route Route) *Outcome {
	return &Outcome{
		State:   inv.state,
		Delta:   inv.delta,
		Reports: inv.reports,
		Route:   route,
	}
}

func (o *Orchestrator) runStage(ctx context.Context, inv *invocation, stage tasks.Stage) {
	d, report := stage.Run(ctx, o.runner, inv.state)
	inv.apply(d, report)
}

// StartSession creates a session from cfg and runs it up to the point where
// the trainee must speak.
func (o *Orchestrator) StartSession(ctx context.Context, cfg schema.SessionConfig) (*Outcome, error) {
	state, err := newSessionState(cfg)
	if err != nil {
		return nil, err
	}

	ctx, span := o.startSpan(ctx, "session.start", state)
	defer span.End()

	o.logger.Info("starting session",
		zap.String("session_id", state.ID),
		zap.String("difficulty", string(state.Difficulty)),
		zap.Bool("custom_scenario", cfg.Scenario != nil || cfg.ScenarioDraft != ""),
		zap.Bool("custom_persona", cfg.Persona != nil || cfg.PersonaDraft != ""),
	)

	out, err := o.Run(ctx, state)
	endSpan(span, out, err)
	return out, err
}

// Run takes a session through entry routing: a session that already has
// both artifacts and has left the created status goes straight into the turn
// loop, anything else runs the setup chain.
func (o *Orchestrator) Run(ctx context.Context, prior *schema.State) (*Outcome, error) {
	if out, err := o.checkTerminal(prior); err != nil {
		return out, err
	}

	inv := &invocation{state: prior.Clone()}

	if inv.state.HasArtifacts() && inv.state.Status != schema.StatusCreated {
		o.logger.Debug("entry routing", zap.String("session_id", prior.ID), zap.String("next", tasks.StageGuest))
		return o.loop(ctx, inv)
	}

	o.runStage(ctx, inv, o.scenario)
	o.runStage(ctx, inv, o.persona)
	o.sessionReady(inv)

	if !inv.state.HasTraineeUtterance() || inv.state.TurnCount == 0 {
		o.logger.Debug("session ready", zap.String("session_id", prior.ID))
		return inv.outcome(RouteReady), nil
	}
	return o.loop(ctx, inv)
}

// ContinueSession handles one trainee message: guest simulation, silent
// scoring, then the routing table. An empty utterance runs the loop without
// recording a trainee turn.
func (o *Orchestrator) ContinueSession(ctx context.Context, prior *schema.State, utterance string) (*Outcome, error) {
	ctx, span := o.startSpan(ctx, "session.continue", prior)
	defer span.End()

	if out, err := o.checkTerminal(prior); err != nil {
		endSpan(span, out, err)
		return out, err
	}

	inv := &invocation{state: prior.Clone()}
	if text := strings.TrimSpace(utterance); text != "" {
		inv.apply(schema.Delta{
			Utterances: []schema.Utterance{{Speaker: schema.SpeakerTrainee, Text: text}},
		}, tasks.Report{Stage: "trainee_utterance", Tier: tasks.TierLocal})
	}

	out, err := o.loop(ctx, inv)
	endSpan(span, out, err)
	return out, err
}

// EndSession forces feedback generation and completes the session.
func (o *Orchestrator) EndSession(ctx context.Context, prior *schema.State) (*Outcome, error) {
	ctx, span := o.startSpan(ctx, "session.end", prior)
	defer span.End()

	if out, err := o.checkTerminal(prior); err != nil {
		endSpan(span, out, err)
		return out, err
	}

	inv := &invocation{state: prior.Clone()}
	o.runStage(ctx, inv, o.feedback)
	o.logger.Info("session ended by trainee",
		zap.String("session_id", prior.ID),
		zap.Int("turns", inv.state.TurnCount),
	)

	out := inv.outcome(RouteComplete)
	endSpan(span, out, nil)
	return out, nil
}

// loop is the single turn-loop implementation behind every entry point.
func (o *Orchestrator) loop(ctx context.Context, inv *invocation) (*Outcome, error) {
	for {
		if !inv.state.HasArtifacts() {
			return o.fail(inv, KindMissingArtifact, ErrMissingArtifact,
				"This session has no scenario or persona and cannot continue. Please start a new session.")
		}

		o.runStage(ctx, inv, o.guest)
		o.runStage(ctx, inv, o.scoring)

		rule, ok := route(o.rules, inv.state)
		if !ok {
			o.logger.Error("no routing rule matched",
				zap.String("session_id", inv.state.ID),
				zap.String("status", string(inv.state.Status)),
				zap.Int("turns", inv.state.TurnCount),
			)
			return o.fail(inv, KindRoutingExhausted, ErrRoutingExhausted,
				"The session reached an unexpected state and was stopped.")
		}

		o.logger.Debug("routing decision",
			zap.String("session_id", inv.state.ID),
			zap.String("rule", rule.Name),
			zap.String("route", string(rule.Route)),
			zap.Int("turns", inv.state.TurnCount),
			zap.Int("critical_errors", inv.state.CriticalErrorCount),
		)

		switch rule.Route {
		case RouteComplete:
			o.runStage(ctx, inv, o.feedback)
			return inv.outcome(RouteComplete), nil
		case RouteContinue:
			continue
		default:
			return inv.outcome(rule.Route), nil
		}
	}
}

// sessionReady marks the session ready, announces it and fixes the steps
// the trainee is expected to complete.
func (o *Orchestrator) sessionReady(inv *invocation) {
	d := schema.Delta{}
	if inv.state.Status == schema.StatusCreated {
		d.Status = schema.StatusPtr(schema.StatusReady)
		d.Utterances = []schema.Utterance{{Speaker: schema.SpeakerSystem, Text: readinessNotice(inv.state)}}
	}
	if len(inv.state.RequiredSteps) == 0 && inv.state.Scenario != nil {
		d.RequiredSteps = inv.state.Scenario.SuccessCriteria
	}
	inv.apply(d, tasks.Report{Stage: StageSessionReady, Tier: tasks.TierLocal})
}

func readinessNotice(s *schema.State) string {
	if !s.HasArtifacts() {
		return "Session ready. Greet the guest to begin."
	}
	return fmt.Sprintf("Session ready: %s. You are speaking with %s. Greet the guest to begin.",
		s.Scenario.Title, s.Persona.Name)
}

// checkTerminal rejects triggers on complete or errored sessions, leaving
// the state untouched.
func (o *Orchestrator) checkTerminal(prior *schema.State) (*Outcome, error) {
	if prior == nil {
		return nil, &ValidationError{Field: "state", Message: "prior state is required"}
	}
	if !prior.Status.Terminal() {
		return nil, nil
	}

	o.logger.Warn("trigger on terminal session",
		zap.String("session_id", prior.ID),
		zap.String("status", string(prior.Status)),
	)

	route := RouteComplete
	if prior.Status == schema.StatusError {
		route = RouteError
	}
	return &Outcome{State: prior.Clone(), Route: route}, &SessionError{
		SessionID: prior.ID,
		Kind:      KindTerminal,
		Message:   fmt.Sprintf("session is %s", prior.Status),
		Err:       ErrSessionTerminal,
	}
}

// fail marks the session errored with a user-facing message.
func (o *Orchestrator) fail(inv *invocation, kind SessionErrorKind, cause error, message string) (*Outcome, error) {
	o.logger.Error("session failed",
		zap.String("session_id", inv.state.ID),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)
	inv.apply(schema.Delta{
		Status:    schema.StatusPtr(schema.StatusError),
		LastError: message,
	}, tasks.Report{Stage: "session_error", Tier: tasks.TierLocal})

	return inv.outcome(RouteError), &SessionError{
		SessionID: inv.state.ID,
		Kind:      kind,
		Message:   message,
		Err:       cause,
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, state *schema.State) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if state != nil {
		attrs = append(attrs,
			attribute.String("session.id", state.ID),
			attribute.String("session.status", string(state.Status)),
		)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, out *Outcome, err error) {
	if out != nil {
		span.SetAttributes(
			attribute.String("session.route", string(out.Route)),
			attribute.Int("session.turns", out.State.TurnCount),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// newSessionState builds the created state for a new session. Caller
// supplied artifacts are validated and kept as-is.
func newSessionState(cfg schema.SessionConfig) (*schema.State, error) {
	id := cfg.SessionID
	if id == "" {
		var err error
		if id, err = schema.NewSessionID(); err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
	}

	if cfg.Scenario != nil {
		if err := schema.ValidateScenario(cfg.Scenario); err != nil {
			return nil, &ValidationError{Field: "scenario", Message: err.Error(), Err: err}
		}
	}
	if cfg.Persona != nil {
		if err := schema.ValidatePersona(cfg.Persona); err != nil {
			return nil, &ValidationError{Field: "persona", Message: err.Error(), Err: err}
		}
	}

	state := schema.NewState(id)
	state.Difficulty = schema.ParseDifficulty(cfg.Difficulty)
	state.CustomScenarioDraft = strings.TrimSpace(cfg.ScenarioDraft)
	state.CustomPersonaDraft = strings.TrimSpace(cfg.PersonaDraft)
	for _, step := range cfg.RequiredSteps {
		if step = strings.TrimSpace(step); step != "" {
			state.RequiredSteps = append(state.RequiredSteps, step)
		}
	}

	return schema.Apply(state, schema.Delta{Scenario: cfg.Scenario, Persona: cfg.Persona}), nil
}
