package schema

import (
	"fmt"
	"strings"
)

// ValidateScenario validates a scenario artifact.
func ValidateScenario(s *Scenario) error {
	if s == nil {
		return fmt.Errorf("scenario is required")
	}
	if n := len(strings.TrimSpace(s.Title)); n < TitleMin || n > TitleMax {
		return fmt.Errorf("title must be %d-%d characters", TitleMin, TitleMax)
	}
	if n := len(strings.TrimSpace(s.BusinessContext)); n < ContextMin || n > ContextMax {
		return fmt.Errorf("business_context must be %d-%d characters", ContextMin, ContextMax)
	}
	if n := len(strings.TrimSpace(s.Situation)); n < ContextMin || n > ContextMax {
		return fmt.Errorf("situation must be %d-%d characters", ContextMin, ContextMax)
	}

	switch s.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		// Valid
	default:
		return fmt.Errorf("invalid difficulty: %s", s.Difficulty)
	}

	if err := validateList("constraints", s.Constraints); err != nil {
		return err
	}
	if err := validateList("expected_challenges", s.ExpectedChallenges); err != nil {
		return err
	}
	return validateList("success_criteria", s.SuccessCriteria)
}

// ValidatePersona validates a persona artifact.
func ValidatePersona(p *Persona) error {
	if p == nil {
		return fmt.Errorf("persona is required")
	}
	if n := len(strings.TrimSpace(p.Name)); n < NameMin || n > NameMax {
		return fmt.Errorf("name must be %d-%d characters", NameMin, NameMax)
	}
	if strings.TrimSpace(p.Demographics) == "" {
		return fmt.Errorf("demographics is required")
	}
	if strings.TrimSpace(p.CommunicationStyle) == "" {
		return fmt.Errorf("communication_style is required")
	}
	if strings.TrimSpace(p.EmotionalTone) == "" {
		return fmt.Errorf("emotional_tone is required")
	}
	if err := validateList("personality_traits", p.PersonalityTraits); err != nil {
		return err
	}
	if err := validateList("expectations", p.Expectations); err != nil {
		return err
	}
	return validateList("escalation_behaviors", p.EscalationBehaviors)
}

// ValidateScores validates that every metric is within 0-100.
func ValidateScores(s *Scores) error {
	if s == nil {
		return fmt.Errorf("scores are required")
	}
	metrics := []struct {
		name  string
		value int
	}{
		{"policy_adherence", s.PolicyAdherence},
		{"empathy", s.Empathy},
		{"completeness", s.Completeness},
		{"escalation_judgment", s.EscalationJudgment},
		{"time_efficiency", s.TimeEfficiency},
	}
	for _, m := range metrics {
		if m.value < ScoreMin || m.value > ScoreMax {
			return fmt.Errorf("%s must be %d-%d, got %d", m.name, ScoreMin, ScoreMax, m.value)
		}
	}
	return nil
}

// ValidateFeedback validates an end-of-session feedback artifact.
func ValidateFeedback(f *Feedback) error {
	if f == nil {
		return fmt.Errorf("feedback is required")
	}
	if strings.TrimSpace(f.Summary) == "" {
		return fmt.Errorf("summary is required")
	}
	if f.OverallScore < ScoreMin || f.OverallScore > ScoreMax {
		return fmt.Errorf("overall_score must be %d-%d, got %d", ScoreMin, ScoreMax, f.OverallScore)
	}
	if err := validateList("strengths", f.Strengths); err != nil {
		return err
	}
	return validateList("improvements", f.Improvements)
}

func validateList(field string, items []string) error {
	if len(items) < ListMin || len(items) > ListMax {
		return fmt.Errorf("%s must have %d-%d entries, got %d", field, ListMin, ListMax, len(items))
	}
	for i, item := range items {
		if strings.TrimSpace(item) == "" {
			return fmt.Errorf("%s[%d] is empty", field, i)
		}
	}
	return nil
}
