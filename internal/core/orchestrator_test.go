package core

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"rehearse/internal/llm"
	"rehearse/internal/llm/tasks"
	"rehearse/pkg/schema"
)

func TestStartSession_GeneratesArtifacts(t *testing.T) {
	gen := fixtureMock(t)
	o := NewOrchestrator(gen)

	out, err := o.StartSession(context.Background(), schema.SessionConfig{
		SessionID:  "SES-start",
		Difficulty: "beginner",
	})
	require.NoError(t, err)

	assert.Equal(t, RouteReady, out.Route)
	state := out.State
	assert.Equal(t, "SES-start", state.ID)
	assert.Equal(t, schema.StatusReady, state.Status)
	assert.Equal(t, schema.DifficultyEasy, state.Difficulty)
	require.NotNil(t, state.Scenario)
	require.NotNil(t, state.Persona)
	assert.Equal(t, "Double-Booked Anniversary Suite", state.Scenario.Title)
	assert.Equal(t, "Marguerite Okafor", state.Persona.Name)
	assert.Equal(t, fixtureSteps, state.RequiredSteps)
	assert.Zero(t, state.TurnCount)

	// Only the readiness notice is logged; the guest has not spoken.
	require.Len(t, state.Utterances, 1)
	assert.Equal(t, schema.SpeakerSystem, state.Utterances[0].Speaker)
	assert.Contains(t, state.Utterances[0].Text, "Double-Booked Anniversary Suite")
	assert.Contains(t, state.Utterances[0].Text, "Marguerite Okafor")

	assert.Equal(t, 1, gen.Calls("scenario"))
	assert.Equal(t, 1, gen.Calls("persona"))
	assert.Zero(t, gen.Calls("guest_response"))
	assert.Zero(t, gen.Calls("scoring"))

	stages := make([]string, 0, len(out.Reports))
	for _, r := range out.Reports {
		stages = append(stages, r.Stage)
	}
	assert.Equal(t, []string{tasks.StageScenario, tasks.StagePersona, StageSessionReady}, stages)
	assert.Empty(t, out.Degraded())
}

func TestStartSession_GeneratesID(t *testing.T) {
	o := NewOrchestrator(fixtureMock(t))

	out, err := o.StartSession(context.Background(), schema.SessionConfig{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.State.ID)
}

func TestStartSession_FailingBackendFallsBack(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	gen := &llm.FailingGenerator{}
	o := NewOrchestrator(gen, WithLogger(zap.New(core)))

	out, err := o.StartSession(context.Background(), schema.SessionConfig{SessionID: "SES-offline", Difficulty: "beginner"})
	require.NoError(t, err)

	assert.Equal(t, RouteReady, out.Route)
	assert.Equal(t, schema.StatusReady, out.State.Status)
	assert.Equal(t, schema.DifficultyEasy, out.State.Difficulty)
	assert.Equal(t, tasks.MinimalScenario(), out.State.Scenario)
	assert.Equal(t, tasks.MinimalPersona(), out.State.Persona)
	assert.Equal(t, tasks.MinimalScenario().SuccessCriteria, out.State.RequiredSteps)
	assert.Positive(t, gen.Calls())

	degraded := out.Degraded()
	require.Len(t, degraded, 2)
	for _, r := range degraded {
		assert.Equal(t, tasks.TierMinimal, r.Tier)
		assert.NotEmpty(t, r.Failures)
	}

	assert.Positive(t, logs.FilterMessage("stage generation failed, falling back").Len())
}

func TestStartSession_SuppliedArtifacts(t *testing.T) {
	gen := llm.NewMockGenerator()
	o := NewOrchestrator(gen)

	out, err := o.StartSession(context.Background(), schema.SessionConfig{
		SessionID:     "SES-custom",
		Scenario:      tasks.MinimalScenario(),
		Persona:       tasks.MinimalPersona(),
		RequiredSteps: []string{"  Greet the guest ", "", "Offer a fix"},
	})
	require.NoError(t, err)

	assert.Equal(t, RouteReady, out.Route)
	assert.Equal(t, tasks.MinimalScenario(), out.State.Scenario)
	assert.Equal(t, []string{"Greet the guest", "Offer a fix"}, out.State.RequiredSteps)
	assert.Zero(t, gen.TotalCalls())

	require.GreaterOrEqual(t, len(out.Reports), 2)
	assert.Equal(t, tasks.TierSkipped, out.Reports[0].Tier)
	assert.Equal(t, tasks.TierSkipped, out.Reports[1].Tier)
}

func TestStartSession_InvalidSuppliedScenario(t *testing.T) {
	o := NewOrchestrator(llm.NewMockGenerator())

	_, err := o.StartSession(context.Background(), schema.SessionConfig{
		Scenario: &schema.Scenario{Title: "x"},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scenario", verr.Field)
}

func TestContinueSession_AwaitsNextMessage(t *testing.T) {
	gen := fixtureMock(t)
	o := NewOrchestrator(gen)
	ready := startReady(t, o)

	out, err := o.ContinueSession(context.Background(), ready, "  I'm so sorry about the mix-up.  ")
	require.NoError(t, err)

	assert.Equal(t, RouteAwait, out.Route)
	state := out.State
	assert.Equal(t, schema.StatusActive, state.Status)
	assert.Equal(t, 1, state.TurnCount)
	assert.Equal(t, "upset", state.GuestMood)
	require.NotNil(t, state.Scores)
	assert.Equal(t, 72, state.Scores.Empathy)
	assert.Nil(t, state.Feedback)

	// Scored steps are matched to the required wording.
	assert.Equal(t, []string{"Apologize sincerely"}, state.CompletedSteps)

	conv := state.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, schema.Utterance{Speaker: schema.SpeakerTrainee, Text: "I'm so sorry about the mix-up."}, conv[0])
	assert.Equal(t, schema.SpeakerGuest, conv[1].Speaker)
	assert.Equal(t, "We booked this suite in March. What exactly are you going to do about it?", conv[1].Text)

	assert.Equal(t, 1, gen.Calls("guest_response"))
	assert.Equal(t, 1, gen.Calls("scoring"))
	assert.Zero(t, gen.Calls("feedback"))

	// The prior state is never mutated.
	assert.Equal(t, schema.StatusReady, ready.Status)
	assert.Len(t, ready.Utterances, 1)
}

func TestContinueSession_DeltaReproducesState(t *testing.T) {
	o := NewOrchestrator(fixtureMock(t))
	ready := startReady(t, o)

	out, err := o.ContinueSession(context.Background(), ready, "Welcome back, let me check.")
	require.NoError(t, err)

	if diff := cmp.Diff(out.State, schema.Apply(ready, out.Delta)); diff != "" {
		t.Errorf("applying the delta to the prior state differs (-outcome +applied):\n%s", diff)
	}
	assert.Equal(t, 1, out.Delta.Turns)
}

func TestContinueSession_SilentTraineeCompletes(t *testing.T) {
	gen := fixtureMock(t)
	o := NewOrchestrator(gen)
	ready := startReady(t, o)

	out, err := o.ContinueSession(context.Background(), ready, "")
	require.NoError(t, err)

	assert.Equal(t, RouteComplete, out.Route)
	assert.Equal(t, schema.StatusComplete, out.State.Status)
	require.NotNil(t, out.State.Feedback)
	assert.Equal(t, 68, out.State.Feedback.OverallScore)
	assert.Equal(t, 1, gen.Calls("guest_response"))
	assert.Equal(t, 1, gen.Calls("feedback"))
	assert.False(t, out.State.HasTraineeUtterance())
}

func TestContinueSession_CompletionRules(t *testing.T) {
	tests := []struct {
		name    string
		prior   func() *schema.State
		guest   tasks.GuestOutput
		scoring tasks.ScoringOutput
		opts    []Option
	}{
		{
			name:    "critical errors",
			prior:   func() *schema.State { return activeState(2) },
			guest:   guestReply("That is completely unacceptable.", false),
			scoring: scoringReply(nil, "blamed the guest", "refused to help", "was rude"),
		},
		{
			name: "critical errors accumulate across turns",
			prior: func() *schema.State {
				s := activeState(4)
				s.CriticalErrorCount = 2
				return s
			},
			guest:   guestReply("Now you are lying to me.", false),
			scoring: scoringReply(nil, "disclosed another guest's booking"),
		},
		{
			name:    "resolution accepted",
			prior:   func() *schema.State { return activeState(3) },
			guest:   guestReply("Fine, the garden suite will do. Thank you.", true),
			scoring: scoringReply(nil),
		},
		{
			name:    "turn limit",
			prior:   func() *schema.State { return activeState(DefaultMaxTurns - 1) },
			guest:   guestReply("We have been at this for ages.", false),
			scoring: scoringReply(nil),
		},
		{
			name:    "configured turn limit",
			prior:   func() *schema.State { return activeState(1) },
			guest:   guestReply("Is that all?", false),
			scoring: scoringReply(nil),
			opts:    []Option{WithMaxTurns(2)},
		},
		{
			name:  "every step completed",
			prior: func() *schema.State { return activeState(2) },
			guest: guestReply("Alright, that works.", false),
			scoring: scoringReply([]string{
				"acknowledge the inconvenience",
				"Offer a concrete alternative",
				"confirm the guest's next step",
			}),
		},
		{
			name: "setup never finished",
			prior: func() *schema.State {
				s := activeState(0)
				s.Status = schema.StatusCreated
				return s
			},
			guest:   guestReply("Hello?", false),
			scoring: scoringReply(nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := setupMock(t).
				On("guest_response", tt.guest).
				On("scoring", tt.scoring)
			o := NewOrchestrator(gen, tt.opts...)

			out, err := o.ContinueSession(context.Background(), tt.prior(), "Let me see what I can do.")
			require.NoError(t, err)

			assert.Equal(t, RouteComplete, out.Route)
			assert.Equal(t, schema.StatusComplete, out.State.Status)
			require.NotNil(t, out.State.Feedback)
			assert.Equal(t, 1, gen.Calls("guest_response"))
			assert.Equal(t, 1, gen.Calls("feedback"))
		})
	}
}

func TestContinueSession_LoopsOnContinueRoute(t *testing.T) {
	gen := setupMock(t).
		On("guest_response", guestReply("And another thing...", false)).
		On("scoring", scoringReply(nil))
	o := NewOrchestrator(gen)
	o.rules = []Rule{
		{Name: "three_turns", Match: func(s *schema.State) bool { return s.TurnCount >= 3 }, Route: RouteComplete},
		{Name: "default", Match: func(*schema.State) bool { return true }, Route: RouteContinue},
	}

	out, err := o.ContinueSession(context.Background(), activeState(0), "Go on.")
	require.NoError(t, err)

	assert.Equal(t, RouteComplete, out.Route)
	assert.Equal(t, 3, out.State.TurnCount)
	assert.Equal(t, 3, gen.Calls("guest_response"))
	assert.Equal(t, 3, gen.Calls("scoring"))
	assert.Equal(t, 1, gen.Calls("feedback"))
}

func TestContinueSession_RoutingExhausted(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	gen := setupMock(t).
		On("guest_response", guestReply("Well?", false)).
		On("scoring", scoringReply(nil))
	o := NewOrchestrator(gen, WithLogger(zap.New(core)))
	o.rules = nil

	out, err := o.ContinueSession(context.Background(), activeState(1), "One moment please.")

	require.ErrorIs(t, err, ErrRoutingExhausted)
	var serr *SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindRoutingExhausted, serr.Kind)
	assert.Equal(t, "SES-active", serr.SessionID)

	require.NotNil(t, out)
	assert.Equal(t, RouteError, out.Route)
	assert.Equal(t, schema.StatusError, out.State.Status)
	assert.NotEmpty(t, out.State.LastError)
	assert.Equal(t, schema.StatusError, *out.Delta.Status)
	assert.Zero(t, gen.Calls("feedback"))

	assert.Equal(t, 1, logs.FilterMessage("no routing rule matched").Len())
}

func TestContinueSession_MissingArtifacts(t *testing.T) {
	gen := llm.NewMockGenerator()
	o := NewOrchestrator(gen)

	prior := activeState(2)
	prior.Persona = nil

	out, err := o.ContinueSession(context.Background(), prior, "Hello?")

	require.ErrorIs(t, err, ErrMissingArtifact)
	var serr *SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindMissingArtifact, serr.Kind)

	assert.Equal(t, RouteError, out.Route)
	assert.Equal(t, schema.StatusError, out.State.Status)
	assert.Contains(t, out.State.LastError, "start a new session")
	assert.Zero(t, gen.TotalCalls())
}

func TestTriggers_TerminalSessionsUnchanged(t *testing.T) {
	complete := activeState(5)
	complete.Status = schema.StatusComplete
	errored := activeState(5)
	errored.Status = schema.StatusError
	errored.LastError = "boom"

	triggers := map[string]func(o *Orchestrator, s *schema.State) (*Outcome, error){
		"run": func(o *Orchestrator, s *schema.State) (*Outcome, error) {
			return o.Run(context.Background(), s)
		},
		"continue": func(o *Orchestrator, s *schema.State) (*Outcome, error) {
			return o.ContinueSession(context.Background(), s, "Are you still there?")
		},
		"end": func(o *Orchestrator, s *schema.State) (*Outcome, error) {
			return o.EndSession(context.Background(), s)
		},
	}

	for name, trigger := range triggers {
		for _, prior := range []*schema.State{complete, errored} {
			t.Run(name+"/"+string(prior.Status), func(t *testing.T) {
				gen := llm.NewMockGenerator()
				o := NewOrchestrator(gen)

				out, err := trigger(o, prior)

				require.ErrorIs(t, err, ErrSessionTerminal)
				var serr *SessionError
				require.ErrorAs(t, err, &serr)
				assert.Equal(t, KindTerminal, serr.Kind)

				require.NotNil(t, out)
				assert.Equal(t, prior, out.State)
				assert.True(t, out.Delta.IsEmpty())
				assert.Zero(t, gen.TotalCalls())
			})
		}
	}
}

func TestTriggers_NilState(t *testing.T) {
	o := NewOrchestrator(llm.NewMockGenerator())

	_, err := o.ContinueSession(context.Background(), nil, "hi")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = o.EndSession(context.Background(), nil)
	assert.ErrorAs(t, err, &verr)
}

func TestEndSession_ForcesFeedback(t *testing.T) {
	gen := setupMock(t)
	o := NewOrchestrator(gen)

	out, err := o.EndSession(context.Background(), activeState(4))
	require.NoError(t, err)

	assert.Equal(t, RouteComplete, out.Route)
	assert.Equal(t, schema.StatusComplete, out.State.Status)
	require.NotNil(t, out.State.Feedback)
	assert.Equal(t, 4, out.State.TurnCount)
	assert.Zero(t, gen.Calls("guest_response"))
	assert.Equal(t, 1, gen.Calls("feedback"))
}

func TestEndSession_FeedbackFallback(t *testing.T) {
	o := NewOrchestrator(&llm.FailingGenerator{})

	out, err := o.EndSession(context.Background(), activeState(2))
	require.NoError(t, err)

	assert.Equal(t, schema.StatusComplete, out.State.Status)
	require.NotNil(t, out.State.Feedback)
	assert.NotEmpty(t, out.State.Feedback.Summary)
	require.Len(t, out.Degraded(), 1)
}

func TestRun_EntryRouting(t *testing.T) {
	t.Run("active session goes straight to the turn loop", func(t *testing.T) {
		gen := setupMock(t).
			On("guest_response", guestReply("Still waiting.", false)).
			On("scoring", scoringReply(nil))
		o := NewOrchestrator(gen)

		prior := activeState(1)
		prior.Utterances = append(prior.Utterances, schema.Utterance{Speaker: schema.SpeakerTrainee, Text: "Right away."})

		out, err := o.Run(context.Background(), prior)
		require.NoError(t, err)

		assert.Equal(t, RouteAwait, out.Route)
		assert.Equal(t, 2, out.State.TurnCount)
		assert.Zero(t, gen.Calls("scenario"))
		assert.Zero(t, gen.Calls("persona"))
	})

	t.Run("created session with artifacts is announced", func(t *testing.T) {
		gen := llm.NewMockGenerator()
		o := NewOrchestrator(gen)

		prior := schema.NewState("SES-created")
		prior.Scenario = tasks.MinimalScenario()
		prior.Persona = tasks.MinimalPersona()

		out, err := o.Run(context.Background(), prior)
		require.NoError(t, err)

		assert.Equal(t, RouteReady, out.Route)
		assert.Equal(t, schema.StatusReady, out.State.Status)
		assert.Zero(t, gen.TotalCalls())
	})
}

func TestRefine(t *testing.T) {
	t.Run("persona", func(t *testing.T) {
		o := NewOrchestrator(fixtureMock(t))

		res, err := o.Refine(context.Background(), RefinePersona, "older architect, very particular, anniversary trip")
		require.NoError(t, err)

		assert.Equal(t, RefinePersona, res.Kind)
		assert.Nil(t, res.Scenario)
		require.NotNil(t, res.Persona)
		assert.NotEmpty(t, res.Persona.Name)
		assert.NotEmpty(t, res.Persona.Demographics)
		assert.NotEmpty(t, res.Persona.PersonalityTraits)
		assert.NotEmpty(t, res.Persona.CommunicationStyle)
		assert.NotEmpty(t, res.Persona.EmotionalTone)
		assert.NotEmpty(t, res.Persona.Expectations)
		assert.NotEmpty(t, res.Persona.EscalationBehaviors)
		assert.Equal(t, tasks.TierPrimary, res.Report.Tier)
	})

	t.Run("scenario falls back to the draft", func(t *testing.T) {
		o := NewOrchestrator(&llm.FailingGenerator{})

		res, err := o.Refine(context.Background(), RefineScenario, "Guest finds a broken safe in the room after a late check-in.")
		require.NoError(t, err)

		require.NotNil(t, res.Scenario)
		assert.NoError(t, schema.ValidateScenario(res.Scenario))
		assert.Equal(t, tasks.TierMinimal, res.Report.Tier)
	})

	t.Run("invalid input", func(t *testing.T) {
		gen := llm.NewMockGenerator()
		o := NewOrchestrator(gen)

		var verr *ValidationError
		_, err := o.Refine(context.Background(), RefineScenario, "   ")
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "draft", verr.Field)

		_, err = o.Refine(context.Background(), RefineKind("feedback"), "make it harder")
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "kind", verr.Field)

		assert.Zero(t, gen.TotalCalls())
	})
}

func TestOutcome_Degraded(t *testing.T) {
	out := &Outcome{Reports: []tasks.Report{
		{Stage: tasks.StageScenario, Tier: tasks.TierPrimary},
		{Stage: tasks.StagePersona, Tier: tasks.TierSecondary},
		{Stage: tasks.StageGuest, Tier: tasks.TierMinimal},
		{Stage: StageSessionReady, Tier: tasks.TierLocal},
	}}

	degraded := out.Degraded()
	require.Len(t, degraded, 2)
	assert.Equal(t, tasks.StagePersona, degraded[0].Stage)
	assert.Equal(t, tasks.StageGuest, degraded[1].Stage)
}

func TestStartSession_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled context degrades every stage but still yields a session.
	o := NewOrchestrator(fixtureMock(t))
	out, err := o.StartSession(ctx, schema.SessionConfig{SessionID: "SES-canceled"})
	require.NoError(t, err)
	assert.Equal(t, tasks.MinimalScenario(), out.State.Scenario)
	assert.Equal(t, schema.StatusReady, out.State.Status)
}
