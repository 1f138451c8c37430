package schema

// Delta is a partial state produced by one stage. Nil and zero fields mean
// "no change". Apply is the only way a Delta reaches a State.
type Delta struct {
	Utterances     []Utterance `json:"utterances,omitempty" yaml:"utterances,omitempty"`
	Scenario       *Scenario   `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Persona        *Persona    `json:"persona,omitempty" yaml:"persona,omitempty"`
	Status         *Status     `json:"status,omitempty" yaml:"status,omitempty"`
	Scores         *Scores     `json:"scores,omitempty" yaml:"scores,omitempty"`
	Feedback       *Feedback   `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	CompletedSteps []string    `json:"completed_steps,omitempty" yaml:"completed_steps,omitempty"`
	RequiredSteps  []string    `json:"required_steps,omitempty" yaml:"required_steps,omitempty"`
	CriticalErrors int         `json:"critical_errors,omitempty" yaml:"critical_errors,omitempty"`
	Turns          int         `json:"turns,omitempty" yaml:"turns,omitempty"`
	GuestMood      string      `json:"guest_mood,omitempty" yaml:"guest_mood,omitempty"`
	LastError      string      `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// StatusPtr returns a pointer to status, for building deltas inline.
func StatusPtr(status Status) *Status {
	return &status
}

// IsEmpty reports whether the delta changes nothing.
func (d Delta) IsEmpty() bool {
	return len(d.Utterances) == 0 &&
		d.Scenario == nil &&
		d.Persona == nil &&
		d.Status == nil &&
		d.Scores == nil &&
		d.Feedback == nil &&
		len(d.CompletedSteps) == 0 &&
		len(d.RequiredSteps) == 0 &&
		d.CriticalErrors == 0 &&
		d.Turns == 0 &&
		d.GuestMood == "" &&
		d.LastError == ""
}

// Merge composes two deltas so that Apply(Apply(s, d), next) equals
// Apply(s, d.Merge(next)) for every state s.
func (d Delta) Merge(next Delta) Delta {
	out := d
	out.Utterances = append(append([]Utterance{}, d.Utterances...), next.Utterances...)
	if len(out.Utterances) == 0 {
		out.Utterances = nil
	}
	if out.Scenario == nil {
		out.Scenario = next.Scenario
	}
	if out.Persona == nil {
		out.Persona = next.Persona
	}
	if next.Status != nil && (out.Status == nil || !out.Status.Terminal()) {
		out.Status = next.Status
	}
	if next.Scores != nil {
		out.Scores = next.Scores
	}
	if next.Feedback != nil {
		out.Feedback = next.Feedback
	}
	out.CompletedSteps = unionStrings(d.CompletedSteps, next.CompletedSteps)
	if len(next.RequiredSteps) > 0 {
		out.RequiredSteps = next.RequiredSteps
	}
	out.CriticalErrors = d.CriticalErrors + next.CriticalErrors
	out.Turns = d.Turns + next.Turns
	if next.GuestMood != "" {
		out.GuestMood = next.GuestMood
	}
	if next.LastError != "" {
		out.LastError = next.LastError
	}
	return out
}

// Apply folds a delta into a copy of state and returns the copy. The input
// state is never mutated.
//
// Scenario and persona are only filled when absent. Status changes are ignored
// once the state is terminal. Counters only move forward.
func Apply(state *State, d Delta) *State {
	next := state.Clone()

	next.Utterances = append(next.Utterances, d.Utterances...)

	if d.Scenario != nil && next.Scenario == nil {
		sc := d.Scenario.clone()
		next.Scenario = &sc
	}
	if d.Persona != nil && next.Persona == nil {
		p := d.Persona.clone()
		next.Persona = &p
	}
	if d.Status != nil && !next.Status.Terminal() {
		next.Status = *d.Status
	}
	if d.Scores != nil {
		sc := *d.Scores
		next.Scores = &sc
	}
	if d.Feedback != nil {
		fb := d.Feedback.clone()
		next.Feedback = &fb
	}

	next.CompletedSteps = unionStrings(next.CompletedSteps, d.CompletedSteps)
	if len(d.RequiredSteps) > 0 {
		next.RequiredSteps = cloneStrings(d.RequiredSteps)
	}

	if d.CriticalErrors > 0 {
		next.CriticalErrorCount += d.CriticalErrors
	}
	if d.Turns > 0 {
		next.TurnCount += d.Turns
	}
	if d.GuestMood != "" {
		next.GuestMood = d.GuestMood
	}
	if d.LastError != "" {
		next.LastError = d.LastError
	}

	return next
}

// unionStrings appends the entries of add that are not yet in base,
// preserving first-seen order.
func unionStrings(base, add []string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]bool, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
