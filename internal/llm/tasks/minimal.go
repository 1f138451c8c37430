package tasks

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"rehearse/pkg/schema"
)

// MinimalGuestLine is the guest's line when guest simulation falls back.
const MinimalGuestLine = "I see. Can you tell me more about what you can do for me?"

// MinimalScenario returns the fixed scenario used when scenario generation
// falls back to its last tier. It satisfies the scenario contract.
func MinimalScenario() *schema.Scenario {
	return &schema.Scenario{
		Title:           "Room Not Ready at Check-In",
		BusinessContext: "A mid-size city hotel on a busy Friday afternoon with a full house.",
		Situation:       "A guest arrives for check-in and their room is not ready yet.",
		Constraints: []string{
			"Standard check-in time is 3 PM",
			"Complimentary upgrades require manager approval",
		},
		ExpectedChallenges: []string{
			"The guest is tired after travelling",
		},
		Difficulty: schema.DifficultyMedium,
		SuccessCriteria: []string{
			"Acknowledge the inconvenience",
			"Offer a concrete alternative",
			"Confirm the guest's next step",
		},
	}
}

// MinimalPersona returns the fixed persona used when persona generation falls
// back to its last tier.
func MinimalPersona() *schema.Persona {
	return &schema.Persona{
		Name:                "Alex Morgan",
		Demographics:        "40, business traveller",
		PersonalityTraits:   []string{"reasonable", "tired"},
		CommunicationStyle:  "Polite but direct",
		EmotionalTone:       "mildly frustrated",
		Expectations:        []string{"A clear answer about when the room will be ready"},
		EscalationBehaviors: []string{"Asks to speak with a manager"},
	}
}

// MinimalScores is the neutral score set used before any scoring succeeded.
func MinimalScores() schema.Scores {
	return schema.Scores{
		PolicyAdherence:    50,
		Empathy:            50,
		Completeness:       50,
		EscalationJudgment: 50,
		TimeEfficiency:     50,
	}
}

func minimalGuest(state *schema.State) *GuestOutput {
	mood := "neutral"
	if state != nil && state.GuestMood != "" {
		mood = state.GuestMood
	}
	return &GuestOutput{Response: MinimalGuestLine, EmotionalState: mood}
}

// minimalScoring carries the previous scores forward. It never claims steps
// or critical errors.
func minimalScoring(state *schema.State) *ScoringOutput {
	scores := MinimalScores()
	if state != nil && state.Scores != nil {
		scores = *state.Scores
	}
	return &ScoringOutput{
		Scores:         scores,
		CompletedSteps: []string{},
		CriticalErrors: []string{},
		Rationale:      "Scoring unavailable; previous scores carried forward.",
	}
}

// minimalFeedback summarizes the session from the counters and current scores.
func minimalFeedback(state *schema.State) *schema.Feedback {
	scores := MinimalScores()
	if state.Scores != nil {
		scores = *state.Scores
	}

	summary := fmt.Sprintf("Session ended after %d guest turns with %d of %d steps completed.",
		state.TurnCount, len(state.CompletedSteps), len(state.RequiredSteps))
	if state.CriticalErrorCount > 0 {
		summary += fmt.Sprintf(" %d critical errors were recorded.", state.CriticalErrorCount)
	}

	strengths := []string{"Completed the practice session"}
	if best := bestMetric(scores); best != "" {
		strengths = append(strengths, fmt.Sprintf("Strongest area: %s", best))
	}

	improvements := []string{"Review the scenario policies before the next session"}
	if missing := missingSteps(state); len(missing) > 0 {
		improvements = append(improvements, fmt.Sprintf("Steps not completed: %s", strings.Join(missing, ", ")))
	}

	return &schema.Feedback{
		Summary:      summary,
		Strengths:    strengths,
		Improvements: improvements,
		OverallScore: scores.Average(),
		NextSteps:    []string{"Repeat the scenario at the same difficulty"},
	}
}

func bestMetric(s schema.Scores) string {
	metrics := []struct {
		name  string
		value int
	}{
		{"policy adherence", s.PolicyAdherence},
		{"empathy", s.Empathy},
		{"completeness", s.Completeness},
		{"escalation judgment", s.EscalationJudgment},
		{"time efficiency", s.TimeEfficiency},
	}
	best, top := "", -1
	for _, m := range metrics {
		if m.value > top {
			best, top = m.name, m.value
		}
	}
	return best
}

func missingSteps(state *schema.State) []string {
	done := make(map[string]bool, len(state.CompletedSteps))
	for _, s := range state.CompletedSteps {
		done[s] = true
	}
	var missing []string
	for _, s := range state.RequiredSteps {
		if !done[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

// draftScenario seeds the minimal scenario with a trainer's draft.
func draftScenario(draft string) *schema.Scenario {
	s := MinimalScenario()
	s.Situation = clip("Trainer draft: "+strings.TrimSpace(draft), schema.ContextMax)
	return s
}

// draftPersona seeds the minimal persona with a trainer's draft.
func draftPersona(draft string) *schema.Persona {
	p := MinimalPersona()
	p.Demographics = clip(strings.TrimSpace(draft), schema.ContextMax)
	return p
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
