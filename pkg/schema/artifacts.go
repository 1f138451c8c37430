package schema

// Scenario is the structured training situation the trainee is placed in.
type Scenario struct {
	Title              string     `json:"title" yaml:"title"`
	BusinessContext    string     `json:"business_context" yaml:"business_context"`
	Situation          string     `json:"situation" yaml:"situation"`
	Constraints        []string   `json:"constraints" yaml:"constraints"`
	ExpectedChallenges []string   `json:"expected_challenges" yaml:"expected_challenges"`
	Difficulty         Difficulty `json:"difficulty" yaml:"difficulty"`
	SuccessCriteria    []string   `json:"success_criteria" yaml:"success_criteria"`
}

// Persona describes the simulated guest.
type Persona struct {
	Name                string   `json:"name" yaml:"name"`
	Demographics        string   `json:"demographics" yaml:"demographics"`
	PersonalityTraits   []string `json:"personality_traits" yaml:"personality_traits"`
	CommunicationStyle  string   `json:"communication_style" yaml:"communication_style"`
	EmotionalTone       string   `json:"emotional_tone" yaml:"emotional_tone"`
	Expectations        []string `json:"expectations" yaml:"expectations"`
	EscalationBehaviors []string `json:"escalation_behaviors" yaml:"escalation_behaviors"`
}

// Scores holds the five silent scoring metrics, each 0-100.
type Scores struct {
	PolicyAdherence    int `json:"policy_adherence" yaml:"policy_adherence"`
	Empathy            int `json:"empathy" yaml:"empathy"`
	Completeness       int `json:"completeness" yaml:"completeness"`
	EscalationJudgment int `json:"escalation_judgment" yaml:"escalation_judgment"`
	TimeEfficiency     int `json:"time_efficiency" yaml:"time_efficiency"`
}

// Average returns the unweighted mean of the five metrics.
func (s Scores) Average() int {
	return (s.PolicyAdherence + s.Empathy + s.Completeness + s.EscalationJudgment + s.TimeEfficiency) / 5
}

// Feedback is the structured end-of-session debrief.
type Feedback struct {
	Summary      string   `json:"summary" yaml:"summary"`
	Strengths    []string `json:"strengths" yaml:"strengths"`
	Improvements []string `json:"improvements" yaml:"improvements"`
	OverallScore int      `json:"overall_score" yaml:"overall_score"`
	NextSteps    []string `json:"next_steps" yaml:"next_steps"`
}
