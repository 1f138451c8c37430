package schema

import "strings"

// Utterance is one entry in the conversation log.
type Utterance struct {
	Speaker Speaker `json:"speaker" yaml:"speaker"`
	Text    string  `json:"text" yaml:"text"`
}

// State is the single record threaded through every stage of a session.
type State struct {
	ID                  string      `json:"id" yaml:"id"`
	Status              Status      `json:"status" yaml:"status"`
	Difficulty          Difficulty  `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Utterances          []Utterance `json:"utterances" yaml:"utterances"`
	Scenario            *Scenario   `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Persona             *Persona    `json:"persona,omitempty" yaml:"persona,omitempty"`
	Scores              *Scores     `json:"scores,omitempty" yaml:"scores,omitempty"`
	Feedback            *Feedback   `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	CompletedSteps      []string    `json:"completed_steps" yaml:"completed_steps"`
	RequiredSteps       []string    `json:"required_steps" yaml:"required_steps"`
	CriticalErrorCount  int         `json:"critical_error_count" yaml:"critical_error_count"`
	TurnCount           int         `json:"turn_count" yaml:"turn_count"`
	GuestMood           string      `json:"guest_mood,omitempty" yaml:"guest_mood,omitempty"`
	CustomScenarioDraft string      `json:"custom_scenario_draft,omitempty" yaml:"custom_scenario_draft,omitempty"`
	CustomPersonaDraft  string      `json:"custom_persona_draft,omitempty" yaml:"custom_persona_draft,omitempty"`
	LastError           string      `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// SessionConfig is what a caller supplies to start a session.
type SessionConfig struct {
	Difficulty    string    `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Scenario      *Scenario `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Persona       *Persona  `json:"persona,omitempty" yaml:"persona,omitempty"`
	ScenarioDraft string    `json:"scenario_draft,omitempty" yaml:"scenario_draft,omitempty"`
	PersonaDraft  string    `json:"persona_draft,omitempty" yaml:"persona_draft,omitempty"`
	RequiredSteps []string  `json:"required_steps,omitempty" yaml:"required_steps,omitempty"`
	SessionID     string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

// NewState creates an empty session state in the created status.
func NewState(id string) *State {
	return &State{
		ID:             id,
		Status:         StatusCreated,
		Utterances:     make([]Utterance, 0),
		CompletedSteps: make([]string, 0),
		RequiredSteps:  make([]string, 0),
	}
}

// Clone creates a deep copy of the session state.
func (s *State) Clone() *State {
	clone := *s
	clone.Utterances = append(make([]Utterance, 0, len(s.Utterances)), s.Utterances...)
	clone.CompletedSteps = append(make([]string, 0, len(s.CompletedSteps)), s.CompletedSteps...)
	clone.RequiredSteps = append(make([]string, 0, len(s.RequiredSteps)), s.RequiredSteps...)
	if s.Scenario != nil {
		sc := s.Scenario.clone()
		clone.Scenario = &sc
	}
	if s.Persona != nil {
		p := s.Persona.clone()
		clone.Persona = &p
	}
	if s.Scores != nil {
		sc := *s.Scores
		clone.Scores = &sc
	}
	if s.Feedback != nil {
		fb := s.Feedback.clone()
		clone.Feedback = &fb
	}
	return &clone
}

// HasArtifacts reports whether both scenario and persona are present.
func (s *State) HasArtifacts() bool {
	return s.Scenario != nil && s.Persona != nil
}

// LastIndexOf returns the index of the most recent utterance by speaker, or -1.
func (s *State) LastIndexOf(speaker Speaker) int {
	for i := len(s.Utterances) - 1; i >= 0; i-- {
		if s.Utterances[i].Speaker == speaker {
			return i
		}
	}
	return -1
}

// HasTraineeUtterance reports whether the trainee has said anything yet.
func (s *State) HasTraineeUtterance() bool {
	return s.LastIndexOf(SpeakerTrainee) >= 0
}

// TraineeSinceLastGuestTurn reports whether a trainee utterance follows the
// most recent guest utterance. With no guest turn yet, any trainee utterance counts.
func (s *State) TraineeSinceLastGuestTurn() bool {
	return s.LastIndexOf(SpeakerTrainee) > s.LastIndexOf(SpeakerGuest)
}

// Conversation returns the trainee/guest turns, skipping system notices.
func (s *State) Conversation() []Utterance {
	turns := make([]Utterance, 0, len(s.Utterances))
	for _, u := range s.Utterances {
		if u.Speaker == SpeakerSystem {
			continue
		}
		turns = append(turns, u)
	}
	return turns
}

// Transcript renders the conversation as "speaker: text" lines.
func (s *State) Transcript() string {
	var sb strings.Builder
	for _, u := range s.Conversation() {
		sb.WriteString(string(u.Speaker))
		sb.WriteString(": ")
		sb.WriteString(u.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (s Scenario) clone() Scenario {
	s.Constraints = cloneStrings(s.Constraints)
	s.ExpectedChallenges = cloneStrings(s.ExpectedChallenges)
	s.SuccessCriteria = cloneStrings(s.SuccessCriteria)
	return s
}

func (p Persona) clone() Persona {
	p.PersonalityTraits = cloneStrings(p.PersonalityTraits)
	p.Expectations = cloneStrings(p.Expectations)
	p.EscalationBehaviors = cloneStrings(p.EscalationBehaviors)
	return p
}

func (f Feedback) clone() Feedback {
	f.Strengths = cloneStrings(f.Strengths)
	f.Improvements = cloneStrings(f.Improvements)
	f.NextSteps = cloneStrings(f.NextSteps)
	return f
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}
