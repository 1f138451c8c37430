package llm

import (
	"fmt"
	"strings"

	"rehearse/pkg/schema"
)

// systemPrompt is sent as the system message by backends that support one.
const systemPrompt = `You are the content engine of a hospitality training simulator.
You write realistic, specific material for front-line staff training and you always
answer with a single JSON document that matches the requested structure.`

// ScoringRubric describes the five silent metrics. Used in scoring and
// feedback prompts so both read the numbers the same way.
const ScoringRubric = `
Scoring rubric (each 0-100):
- policy_adherence: follows the scenario constraints and policies
- empathy: acknowledges the guest's feelings and situation
- completeness: covers what the guest needs to move forward
- escalation_judgment: escalates when and only when it is warranted
- time_efficiency: resolves without needless back-and-forth
A critical error is a policy violation, a false promise or a hostile remark.
`

// BuildScenarioPrompt creates the primary prompt for scenario generation.
// A non-empty draft is the trainer's own description and takes precedence.
func BuildScenarioPrompt(difficulty schema.Difficulty, draft string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a %s difficulty customer-service training scenario for a hotel front desk.\n\n", difficulty)
	if strings.TrimSpace(draft) != "" {
		fmt.Fprintf(&sb, "Base it on this trainer-supplied description, keeping every concrete detail:\n\"%s\"\n\n", draft)
	}
	sb.WriteString(`REQUIREMENTS:
- title: short and specific (3-120 characters)
- business_context: the property and circumstances the trainee works in
- situation: what the guest arrives with, in two or three sentences
- constraints: the policies the trainee must respect
- expected_challenges: what makes this situation hard
- success_criteria: observable steps a good resolution includes
`)
	fmt.Fprintf(&sb, "- difficulty: exactly %q\n", difficulty)
	difficultyGuidance(&sb, difficulty)
	return sb.String()
}

// BuildGenericScenarioPrompt is the reduced fallback prompt for scenario
// generation.
func BuildGenericScenarioPrompt(difficulty schema.Difficulty) string {
	return fmt.Sprintf("Write a simple hotel front-desk training scenario with difficulty %q.", difficulty)
}

// BuildPersonaPrompt creates the primary prompt for persona generation.
func BuildPersonaPrompt(scenario *schema.Scenario, draft string) string {
	var sb strings.Builder
	sb.WriteString("Create the guest persona the trainee will talk to in this scenario.\n\n")
	writeScenario(&sb, scenario)
	if strings.TrimSpace(draft) != "" {
		fmt.Fprintf(&sb, "\nThe trainer described the guest like this, keep every concrete detail:\n\"%s\"\n", draft)
	}
	sb.WriteString(`
REQUIREMENTS:
- name: a realistic full name
- demographics: age, occupation and travel context in one line
- personality_traits: a few adjectives
- communication_style: how they talk
- emotional_tone: how they feel when they arrive
- expectations: what they want out of the conversation
- escalation_behaviors: what they do when they are not satisfied
`)
	return sb.String()
}

// BuildGenericPersonaPrompt is the reduced fallback prompt for persona
// generation.
func BuildGenericPersonaPrompt() string {
	return "Describe a typical hotel guest with a complaint for a customer-service training exercise."
}

// BuildGuestPrompt creates the primary prompt for simulating the next guest turn.
func BuildGuestPrompt(state *schema.State) string {
	var sb strings.Builder
	sb.WriteString("You are role-playing a hotel guest. Stay in character and reply to the staff member.\n\n")
	writeScenario(&sb, state.Scenario)
	writePersona(&sb, state.Persona)
	if state.GuestMood != "" {
		fmt.Fprintf(&sb, "\nYour current mood: %s\n", state.GuestMood)
	}
	sb.WriteString("\nConversation so far:\n")
	writeTranscript(&sb, state)
	sb.WriteString(`
REQUIREMENTS:
- response: your next line as the guest, one to four sentences, no stage directions
- emotional_state: one or two words for how you feel after the staff member's last line
- resolution_accepted: true only if you accept the offered resolution and the conversation can end
`)
	return sb.String()
}

// BuildGenericGuestPrompt is the reduced fallback prompt for guest simulation.
func BuildGenericGuestPrompt(state *schema.State) string {
	return fmt.Sprintf("You are an unhappy hotel guest. Reply briefly to the staff member's last message.\n\nConversation:\n%s", state.Transcript())
}

// BuildScoringPrompt creates the primary prompt for silent scoring.
func BuildScoringPrompt(state *schema.State) string {
	var sb strings.Builder
	sb.WriteString("Evaluate the trainee (staff member) in this training conversation. The trainee never sees this evaluation.\n\n")
	writeScenario(&sb, state.Scenario)
	if len(state.RequiredSteps) > 0 {
		sb.WriteString("\nSteps the trainee should complete (use these exact labels in completed_steps):\n")
		for _, step := range state.RequiredSteps {
			fmt.Fprintf(&sb, "- %s\n", step)
		}
	}
	if len(state.CompletedSteps) > 0 {
		fmt.Fprintf(&sb, "\nAlready completed: %s\n", strings.Join(state.CompletedSteps, ", "))
	}
	sb.WriteString("\nConversation so far:\n")
	writeTranscript(&sb, state)
	sb.WriteString(ScoringRubric)
	sb.WriteString(`
Score the conversation as a whole. List in critical_errors only the errors made in the
trainee's most recent message. Explain the scores briefly in rationale.
`)
	return sb.String()
}

// BuildGenericScoringPrompt is the reduced fallback prompt for silent scoring.
func BuildGenericScoringPrompt(state *schema.State) string {
	return fmt.Sprintf("Score the staff member in this hotel conversation.\n%s\nConversation:\n%s", ScoringRubric, state.Transcript())
}

// BuildFeedbackPrompt creates the primary prompt for end-of-session feedback.
func BuildFeedbackPrompt(state *schema.State) string {
	var sb strings.Builder
	sb.WriteString("Write the end-of-session debrief for a hotel staff trainee.\n\n")
	writeScenario(&sb, state.Scenario)
	sb.WriteString("\nConversation:\n")
	writeTranscript(&sb, state)
	if state.Scores != nil {
		s := state.Scores
		fmt.Fprintf(&sb, "\nSilent scores: policy_adherence=%d empathy=%d completeness=%d escalation_judgment=%d time_efficiency=%d\n",
			s.PolicyAdherence, s.Empathy, s.Completeness, s.EscalationJudgment, s.TimeEfficiency)
	}
	fmt.Fprintf(&sb, "Steps completed: %d of %d. Critical errors: %d. Guest turns: %d.\n",
		len(state.CompletedSteps), len(state.RequiredSteps), state.CriticalErrorCount, state.TurnCount)
	sb.WriteString(`
REQUIREMENTS:
- summary: two or three sentences, addressed to the trainee
- strengths: what they did well, quoting them where possible
- improvements: concrete things to do differently
- overall_score: 0-100, consistent with the silent scores
- next_steps: what to practice next
`)
	return sb.String()
}

// BuildGenericFeedbackPrompt is the reduced fallback prompt for feedback.
func BuildGenericFeedbackPrompt(state *schema.State) string {
	return fmt.Sprintf("Give short coaching feedback to the staff member in this hotel conversation.\n\nConversation:\n%s", state.Transcript())
}

// BuildRefineScenarioPrompt turns a trainer's free-text scenario draft into
// the structured scenario.
func BuildRefineScenarioPrompt(draft string) string {
	return fmt.Sprintf(`Rewrite this trainer's scenario draft as a structured training scenario.
Keep every concrete detail from the draft and fill gaps with plausible hotel front-desk specifics.
Infer difficulty (Easy, Medium or Hard) from the draft; use Medium when unclear.

Draft:
"%s"
`, draft)
}

// BuildRefinePersonaPrompt turns a trainer's free-text persona draft into the
// structured persona.
func BuildRefinePersonaPrompt(draft string) string {
	return fmt.Sprintf(`Rewrite this trainer's guest description as a structured guest persona.
Keep every concrete detail from the draft and fill gaps with plausible specifics.

Draft:
"%s"
`, draft)
}

// BuildGenericRefinePrompt is the reduced fallback prompt for refinement.
func BuildGenericRefinePrompt(kind, draft string) string {
	return fmt.Sprintf("Turn this into a hotel training %s:\n%s", kind, draft)
}

func difficultyGuidance(sb *strings.Builder, difficulty schema.Difficulty) {
	switch difficulty {
	case schema.DifficultyEasy:
		sb.WriteString("\nKeep it simple: one clear problem, a cooperative guest, an obvious resolution.\n")
	case schema.DifficultyHard:
		sb.WriteString("\nMake it demanding: competing policies, an upset guest, no perfect resolution.\n")
	default:
		sb.WriteString("\nMake it realistic: one main problem with a complication the trainee must handle.\n")
	}
}

func writeScenario(sb *strings.Builder, s *schema.Scenario) {
	if s == nil {
		return
	}
	fmt.Fprintf(sb, "Scenario: %s (%s)\n", s.Title, s.Difficulty)
	fmt.Fprintf(sb, "Context: %s\n", s.BusinessContext)
	fmt.Fprintf(sb, "Situation: %s\n", s.Situation)
	if len(s.Constraints) > 0 {
		fmt.Fprintf(sb, "Policies: %s\n", strings.Join(s.Constraints, "; "))
	}
}

func writePersona(sb *strings.Builder, p *schema.Persona) {
	if p == nil {
		return
	}
	fmt.Fprintf(sb, "\nYou are %s (%s).\n", p.Name, p.Demographics)
	fmt.Fprintf(sb, "Personality: %s\n", strings.Join(p.PersonalityTraits, ", "))
	fmt.Fprintf(sb, "Communication style: %s\n", p.CommunicationStyle)
	fmt.Fprintf(sb, "Emotional tone: %s\n", p.EmotionalTone)
	fmt.Fprintf(sb, "You expect: %s\n", strings.Join(p.Expectations, "; "))
	fmt.Fprintf(sb, "When unsatisfied you: %s\n", strings.Join(p.EscalationBehaviors, "; "))
}

func writeTranscript(sb *strings.Builder, state *schema.State) {
	turns := state.Conversation()
	if len(turns) == 0 {
		sb.WriteString("(no messages yet)\n")
		return
	}
	for _, u := range turns {
		role := "Staff"
		if u.Speaker == schema.SpeakerGuest {
			role = "Guest"
		}
		fmt.Fprintf(sb, "%s: %s\n", role, u.Text)
	}
}
