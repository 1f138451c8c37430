package tasks

import (
	"rehearse/pkg/schema"
)

// Stage names.
const (
	StageScenario       = "scenario_generation"
	StagePersona        = "persona_generation"
	StageGuest          = "guest_simulation"
	StageScoring        = "silent_scoring"
	StageFeedback       = "feedback_generation"
	StageRefineScenario = "refine_scenario"
	StageRefinePersona  = "refine_persona"
)

// Guest Simulation Task Types

// GuestOutput is the output from the guest simulation task.
type GuestOutput struct {
	Response           string `json:"response"`
	EmotionalState     string `json:"emotional_state"`
	ResolutionAccepted bool   `json:"resolution_accepted"`
}

// Silent Scoring Task Types

// ScoringOutput is the output from the silent scoring task. The five metrics
// are inlined from schema.Scores.
type ScoringOutput struct {
	schema.Scores
	CompletedSteps []string `json:"completed_steps"`
	CriticalErrors []string `json:"critical_errors"`
	Rationale      string   `json:"rationale"`
}

// Scenario, persona and feedback stages decode straight into the
// schema.Scenario, schema.Persona and schema.Feedback artifacts.
