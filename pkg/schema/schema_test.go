package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testScenario() *Scenario {
	return &Scenario{
		Title:              "Overbooked Suite",
		BusinessContext:    "Downtown business hotel during a conference week",
		Situation:          "A guest arrives to find the suite they booked was given away",
		Constraints:        []string{"No refunds above one night", "Upgrades need manager approval"},
		ExpectedChallenges: []string{"Guest is tired and frustrated"},
		Difficulty:         DifficultyMedium,
		SuccessCriteria:    []string{"Acknowledge the problem", "Offer an alternative"},
	}
}

func testPersona() *Persona {
	return &Persona{
		Name:                "Dana Whitfield",
		Demographics:        "45, sales director, frequent traveler",
		PersonalityTraits:   []string{"direct", "impatient"},
		CommunicationStyle:  "Short sentences, expects quick answers",
		EmotionalTone:       "irritated",
		Expectations:        []string{"A comparable room tonight"},
		EscalationBehaviors: []string{"Asks for the manager"},
	}
}

func TestIDGeneration(t *testing.T) {
	sesID, err := NewSessionID()
	if err != nil {
		t.Fatalf("Failed to generate session ID: %v", err)
	}
	if !strings.HasPrefix(sesID, "SES-") {
		t.Errorf("Session ID should start with SES-, got %s", sesID)
	}
	if len(strings.TrimPrefix(sesID, "SES-")) != 12 {
		t.Errorf("Nanoid portion should be 12 characters")
	}

	evtID, err := NewEventID()
	if err != nil {
		t.Fatalf("Failed to generate event ID: %v", err)
	}
	if !strings.HasPrefix(evtID, "EVT-") {
		t.Errorf("Event ID should start with EVT-, got %s", evtID)
	}
}

func TestIDCollisionResistance(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("Failed to generate ID: %v", err)
		}
		if ids[id] {
			t.Fatalf("Collision detected after %d iterations: %s", i, id)
		}
		ids[id] = true
	}
}

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		input string
		want  Difficulty
	}{
		{"beginner", DifficultyEasy},
		{"Easy", DifficultyEasy},
		{"intermediate", DifficultyMedium},
		{"", DifficultyMedium},
		{"ADVANCED", DifficultyHard},
		{"hard", DifficultyHard},
		{"whatever", DifficultyMedium},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDifficulty(tt.input))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusCreated.Terminal())
	assert.False(t, StatusReady.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusError.Terminal())
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	state := NewState("SES-test")
	state.Utterances = append(state.Utterances, Utterance{Speaker: SpeakerTrainee, Text: "hello"})

	next := Apply(state, Delta{
		Utterances: []Utterance{{Speaker: SpeakerGuest, Text: "hi"}},
		Scenario:   testScenario(),
		Turns:      1,
	})

	assert.Len(t, state.Utterances, 1)
	assert.Nil(t, state.Scenario)
	assert.Equal(t, 0, state.TurnCount)

	assert.Len(t, next.Utterances, 2)
	assert.NotNil(t, next.Scenario)
	assert.Equal(t, 1, next.TurnCount)
}

func TestApply_ScenarioAndPersonaAreSetOnce(t *testing.T) {
	state := NewState("SES-test")
	state = Apply(state, Delta{Scenario: testScenario(), Persona: testPersona()})

	other := testScenario()
	other.Title = "Something Else"
	otherPersona := testPersona()
	otherPersona.Name = "Someone Else"

	next := Apply(state, Delta{Scenario: other, Persona: otherPersona})

	assert.Equal(t, "Overbooked Suite", next.Scenario.Title)
	assert.Equal(t, "Dana Whitfield", next.Persona.Name)
}

func TestApply_TerminalStatusIsSticky(t *testing.T) {
	for _, terminal := range []Status{StatusComplete, StatusError} {
		t.Run(string(terminal), func(t *testing.T) {
			state := NewState("SES-test")
			state = Apply(state, Delta{Status: StatusPtr(terminal)})
			require.Equal(t, terminal, state.Status)

			next := Apply(state, Delta{Status: StatusPtr(StatusActive)})
			assert.Equal(t, terminal, next.Status)
		})
	}
}

func TestApply_CountersOnlyMoveForward(t *testing.T) {
	state := NewState("SES-test")
	state = Apply(state, Delta{CriticalErrors: 2, Turns: 3})
	next := Apply(state, Delta{CriticalErrors: -5, Turns: -1})

	assert.Equal(t, 2, next.CriticalErrorCount)
	assert.Equal(t, 3, next.TurnCount)
}

func TestApply_CompletedStepsUnion(t *testing.T) {
	state := NewState("SES-test")
	state = Apply(state, Delta{CompletedSteps: []string{"greet", "apologize"}})
	next := Apply(state, Delta{CompletedSteps: []string{"apologize", "offer", ""}})

	assert.Equal(t, []string{"greet", "apologize", "offer"}, next.CompletedSteps)
}

func TestDeltaMerge_EquivalentToSequentialApply(t *testing.T) {
	state := NewState("SES-test")
	state.Utterances = []Utterance{{Speaker: SpeakerTrainee, Text: "I need help"}}

	first := Delta{
		Utterances: []Utterance{{Speaker: SpeakerGuest, Text: "What is going on?"}},
		Status:     StatusPtr(StatusActive),
		Turns:      1,
		GuestMood:  "annoyed",
	}
	second := Delta{
		Scores:         &Scores{PolicyAdherence: 70, Empathy: 60, Completeness: 50, EscalationJudgment: 80, TimeEfficiency: 90},
		CompletedSteps: []string{"greet"},
		CriticalErrors: 1,
		Status:         StatusPtr(StatusComplete),
	}

	sequential := Apply(Apply(state, first), second)
	merged := Apply(state, first.Merge(second))

	if diff := cmp.Diff(sequential, merged); diff != "" {
		t.Errorf("merged delta diverges from sequential apply (-sequential +merged):\n%s", diff)
	}
}

func TestDeltaIsEmpty(t *testing.T) {
	assert.True(t, Delta{}.IsEmpty())
	assert.False(t, Delta{Turns: 1}.IsEmpty())
	assert.False(t, Delta{Status: StatusPtr(StatusReady)}.IsEmpty())
}

func TestState_TraineeSinceLastGuestTurn(t *testing.T) {
	state := NewState("SES-test")
	assert.False(t, state.TraineeSinceLastGuestTurn())
	assert.False(t, state.HasTraineeUtterance())

	state.Utterances = append(state.Utterances, Utterance{Speaker: SpeakerSystem, Text: "ready"})
	assert.False(t, state.TraineeSinceLastGuestTurn())

	state.Utterances = append(state.Utterances, Utterance{Speaker: SpeakerTrainee, Text: "hello"})
	assert.True(t, state.TraineeSinceLastGuestTurn())

	state.Utterances = append(state.Utterances, Utterance{Speaker: SpeakerGuest, Text: "hi"})
	assert.False(t, state.TraineeSinceLastGuestTurn())
	assert.True(t, state.HasTraineeUtterance())
}

func TestState_CloneIsDeep(t *testing.T) {
	state := NewState("SES-test")
	state = Apply(state, Delta{Scenario: testScenario(), Persona: testPersona()})

	clone := state.Clone()
	clone.Scenario.Constraints[0] = "changed"
	clone.Persona.PersonalityTraits[0] = "changed"

	assert.Equal(t, "No refunds above one night", state.Scenario.Constraints[0])
	assert.Equal(t, "direct", state.Persona.PersonalityTraits[0])
}

func TestState_Transcript(t *testing.T) {
	state := NewState("SES-test")
	state.Utterances = []Utterance{
		{Speaker: SpeakerSystem, Text: "Session ready"},
		{Speaker: SpeakerTrainee, Text: "Welcome"},
		{Speaker: SpeakerGuest, Text: "Where is my room?"},
	}

	assert.Equal(t, "trainee: Welcome\nguest: Where is my room?\n", state.Transcript())
}

func TestValidateScenario(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{name: "valid", mutate: func(*Scenario) {}},
		{name: "short title", mutate: func(s *Scenario) { s.Title = "X" }, wantErr: "title must be"},
		{name: "bad difficulty", mutate: func(s *Scenario) { s.Difficulty = "Impossible" }, wantErr: "invalid difficulty"},
		{name: "no constraints", mutate: func(s *Scenario) { s.Constraints = nil }, wantErr: "constraints must have"},
		{name: "blank criterion", mutate: func(s *Scenario) { s.SuccessCriteria = []string{" "} }, wantErr: "success_criteria[0] is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testScenario()
			tt.mutate(s)
			err := ValidateScenario(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidatePersona(t *testing.T) {
	assert.NoError(t, ValidatePersona(testPersona()))

	p := testPersona()
	p.EmotionalTone = ""
	assert.ErrorContains(t, ValidatePersona(p), "emotional_tone")

	p = testPersona()
	p.EscalationBehaviors = nil
	assert.ErrorContains(t, ValidatePersona(p), "escalation_behaviors")

	assert.Error(t, ValidatePersona(nil))
}

func TestValidateScores(t *testing.T) {
	assert.NoError(t, ValidateScores(&Scores{PolicyAdherence: 0, Empathy: 100, Completeness: 50, EscalationJudgment: 50, TimeEfficiency: 50}))
	assert.ErrorContains(t, ValidateScores(&Scores{Empathy: 101}), "empathy")
	assert.ErrorContains(t, ValidateScores(&Scores{TimeEfficiency: -1}), "time_efficiency")
}

func TestStateSerialization(t *testing.T) {
	state := Apply(NewState("SES-test"), Delta{
		Scenario:   testScenario(),
		Persona:    testPersona(),
		Status:     StatusPtr(StatusReady),
		Utterances: []Utterance{{Speaker: SpeakerSystem, Text: "ready"}},
	})

	t.Run("json", func(t *testing.T) {
		data, err := json.Marshal(state)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"business_context"`)

		var decoded State
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, state.Scenario.Title, decoded.Scenario.Title)
		assert.Equal(t, StatusReady, decoded.Status)
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := yaml.Marshal(state)
		require.NoError(t, err)

		var decoded State
		require.NoError(t, yaml.Unmarshal(data, &decoded))
		assert.Equal(t, state.Persona.Name, decoded.Persona.Name)
		assert.Equal(t, state.Utterances, decoded.Utterances)
	})
}
