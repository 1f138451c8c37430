package tasks

import (
	"fmt"
	"strings"

	"rehearse/internal/llm"
	"rehearse/pkg/schema"
)

// ScenarioGeneration creates the training scenario. Skipped when the session
// already has one.
func ScenarioGeneration() *Agent[schema.Scenario] {
	return &Agent[schema.Scenario]{
		StageName: StageScenario,
		Contract:  ScenarioContract,
		Skip: func(s *schema.State) bool {
			return s.Scenario != nil
		},
		Prompt: func(s *schema.State) string {
			return llm.BuildScenarioPrompt(difficultyOf(s), s.CustomScenarioDraft)
		},
		FallbackPrompt: func(s *schema.State) string {
			return llm.BuildGenericScenarioPrompt(difficultyOf(s))
		},
		Validate: schema.ValidateScenario,
		Minimal: func(*schema.State) *schema.Scenario {
			return MinimalScenario()
		},
		Merge: func(_ *schema.State, out *schema.Scenario) schema.Delta {
			return schema.Delta{Scenario: out}
		},
	}
}

// PersonaGeneration creates the guest persona. Skipped when the session
// already has one.
func PersonaGeneration() *Agent[schema.Persona] {
	return &Agent[schema.Persona]{
		StageName: StagePersona,
		Contract:  PersonaContract,
		Skip: func(s *schema.State) bool {
			return s.Persona != nil
		},
		Prompt: func(s *schema.State) string {
			return llm.BuildPersonaPrompt(s.Scenario, s.CustomPersonaDraft)
		},
		FallbackPrompt: func(*schema.State) string {
			return llm.BuildGenericPersonaPrompt()
		},
		Validate: schema.ValidatePersona,
		Minimal: func(*schema.State) *schema.Persona {
			return MinimalPersona()
		},
		Merge: func(_ *schema.State, out *schema.Persona) schema.Delta {
			return schema.Delta{Persona: out}
		},
	}
}

// GuestSimulation produces the next guest turn.
func GuestSimulation() *Agent[GuestOutput] {
	return &Agent[GuestOutput]{
		StageName:      StageGuest,
		Contract:       GuestContract,
		Prompt:         llm.BuildGuestPrompt,
		FallbackPrompt: llm.BuildGenericGuestPrompt,
		Validate:       validateGuest,
		Minimal:        minimalGuest,
		Merge:          mergeGuest,
	}
}

func validateGuest(out *GuestOutput) error {
	n := len(strings.TrimSpace(out.Response))
	if n < schema.GuestResponseMin || n > schema.GuestResponseMax {
		return fmt.Errorf("response must be %d-%d characters, got %d", schema.GuestResponseMin, schema.GuestResponseMax, n)
	}
	if strings.TrimSpace(out.EmotionalState) == "" {
		return fmt.Errorf("emotional_state is required")
	}
	return nil
}

// mergeGuest appends the guest turn and counts it. An accepted resolution
// ends the session.
func mergeGuest(state *schema.State, out *GuestOutput) schema.Delta {
	d := schema.Delta{
		Utterances: []schema.Utterance{{Speaker: schema.SpeakerGuest, Text: strings.TrimSpace(out.Response)}},
		Turns:      1,
		GuestMood:  strings.TrimSpace(out.EmotionalState),
	}
	switch {
	case out.ResolutionAccepted:
		d.Status = schema.StatusPtr(schema.StatusComplete)
	case state.Status == schema.StatusReady:
		d.Status = schema.StatusPtr(schema.StatusActive)
	}
	return d
}

// SilentScoring scores the trainee after each guest turn. The trainee never
// sees these scores during the session.
func SilentScoring() *Agent[ScoringOutput] {
	return &Agent[ScoringOutput]{
		StageName:      StageScoring,
		Contract:       ScoringContract,
		Prompt:         llm.BuildScoringPrompt,
		FallbackPrompt: llm.BuildGenericScoringPrompt,
		Validate: func(out *ScoringOutput) error {
			return schema.ValidateScores(&out.Scores)
		},
		Minimal: minimalScoring,
		Merge:   mergeScoring,
	}
}

// mergeScoring replaces the scores, adds the completed steps and counts the
// critical errors. When required steps are known, only those labels count as
// completed (matched case-insensitively).
func mergeScoring(state *schema.State, out *ScoringOutput) schema.Delta {
	scores := out.Scores
	d := schema.Delta{
		Scores:         &scores,
		CompletedSteps: canonicalSteps(state.RequiredSteps, out.CompletedSteps),
	}
	for _, e := range out.CriticalErrors {
		if strings.TrimSpace(e) != "" {
			d.CriticalErrors++
		}
	}
	return d
}

func canonicalSteps(required, claimed []string) []string {
	if len(required) == 0 {
		out := make([]string, 0, len(claimed))
		for _, c := range claimed {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
		return out
	}

	byKey := make(map[string]string, len(required))
	for _, r := range required {
		byKey[strings.ToLower(strings.TrimSpace(r))] = r
	}
	var out []string
	for _, c := range claimed {
		if label, ok := byKey[strings.ToLower(strings.TrimSpace(c))]; ok {
			out = append(out, label)
		}
	}
	return out
}

// FeedbackGeneration writes the end-of-session debrief and completes the
// session.
func FeedbackGeneration() *Agent[schema.Feedback] {
	return &Agent[schema.Feedback]{
		StageName:      StageFeedback,
		Contract:       FeedbackContract,
		Prompt:         llm.BuildFeedbackPrompt,
		FallbackPrompt: llm.BuildGenericFeedbackPrompt,
		Validate:       schema.ValidateFeedback,
		Minimal:        minimalFeedback,
		Merge: func(_ *schema.State, out *schema.Feedback) schema.Delta {
			return schema.Delta{
				Feedback: out,
				Status:   schema.StatusPtr(schema.StatusComplete),
			}
		},
	}
}

// RefineScenario rewrites a free-text scenario draft into a structured
// scenario. It reads no session state.
func RefineScenario(draft string) *Agent[schema.Scenario] {
	return &Agent[schema.Scenario]{
		StageName: StageRefineScenario,
		Contract:  ScenarioContract,
		Prompt: func(*schema.State) string {
			return llm.BuildRefineScenarioPrompt(draft)
		},
		FallbackPrompt: func(*schema.State) string {
			return llm.BuildGenericRefinePrompt("scenario", draft)
		},
		Validate: schema.ValidateScenario,
		Minimal: func(*schema.State) *schema.Scenario {
			return draftScenario(draft)
		},
		Merge: func(_ *schema.State, out *schema.Scenario) schema.Delta {
			return schema.Delta{Scenario: out}
		},
	}
}

// RefinePersona rewrites a free-text persona draft into a structured persona.
// It reads no session state.
func RefinePersona(draft string) *Agent[schema.Persona] {
	return &Agent[schema.Persona]{
		StageName: StageRefinePersona,
		Contract:  PersonaContract,
		Prompt: func(*schema.State) string {
			return llm.BuildRefinePersonaPrompt(draft)
		},
		FallbackPrompt: func(*schema.State) string {
			return llm.BuildGenericRefinePrompt("persona", draft)
		},
		Validate: schema.ValidatePersona,
		Minimal: func(*schema.State) *schema.Persona {
			return draftPersona(draft)
		},
		Merge: func(_ *schema.State, out *schema.Persona) schema.Delta {
			return schema.Delta{Persona: out}
		},
	}
}

func difficultyOf(s *schema.State) schema.Difficulty {
	if s.Difficulty == "" {
		return schema.DifficultyMedium
	}
	return s.Difficulty
}
