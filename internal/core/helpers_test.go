package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rehearse/internal/llm"
	"rehearse/internal/llm/tasks"
	"rehearse/pkg/schema"
)

const fixtureDir = "../llm/tasks/testdata/fixtures"

// fixtureSteps are the success criteria of the scenario-1 fixture.
var fixtureSteps = []string{"Apologize sincerely", "Offer a concrete alternative", "Confirm the arrangement"}

// fixtureMock scripts every recorded fixture.
func fixtureMock(t testing.TB) *llm.MockGenerator {
	t.Helper()
	gen, err := tasks.NewFixtureGenerator(fixtureDir)
	require.NoError(t, err)
	return gen
}

// setupMock scripts the scenario, persona and feedback fixtures only, so a
// test can queue its own guest and scoring replies.
func setupMock(t testing.TB) *llm.MockGenerator {
	t.Helper()
	gen := llm.NewMockGenerator()
	for _, name := range []string{"scenario-1", "persona-1", "feedback-1"} {
		fixture, err := llm.LoadFixture(fixtureDir, name)
		require.NoError(t, err)
		gen.OnFixture(fixture)
	}
	return gen
}

func guestReply(text string, accepted bool) tasks.GuestOutput {
	return tasks.GuestOutput{Response: text, EmotionalState: "wary", ResolutionAccepted: accepted}
}

func scoringReply(completed []string, critical ...string) tasks.ScoringOutput {
	if completed == nil {
		completed = []string{}
	}
	if critical == nil {
		critical = []string{}
	}
	return tasks.ScoringOutput{
		Scores: schema.Scores{
			PolicyAdherence:    60,
			Empathy:            60,
			Completeness:       60,
			EscalationJudgment: 60,
			TimeEfficiency:     60,
		},
		CompletedSteps: completed,
		CriticalErrors: critical,
		Rationale:      "scripted",
	}
}

// startReady starts a session and checks it stopped at ready.
func startReady(t testing.TB, o *Orchestrator) *schema.State {
	t.Helper()
	out, err := o.StartSession(context.Background(), schema.SessionConfig{SessionID: "SES-test"})
	require.NoError(t, err)
	require.Equal(t, RouteReady, out.Route)
	require.Equal(t, schema.StatusReady, out.State.Status)
	return out.State
}

// activeState is a session mid-conversation with the trainee to speak next.
func activeState(turns int) *schema.State {
	state := schema.NewState("SES-active")
	state.Status = schema.StatusActive
	state.Scenario = tasks.MinimalScenario()
	state.Persona = tasks.MinimalPersona()
	state.RequiredSteps = append([]string{}, state.Scenario.SuccessCriteria...)
	state.TurnCount = turns
	state.Utterances = []schema.Utterance{
		{Speaker: schema.SpeakerTrainee, Text: "Good evening, how can I help?"},
		{Speaker: schema.SpeakerGuest, Text: "My room is not ready."},
	}
	return state
}
