package core

import (
	"rehearse/pkg/schema"
)

// Route is the decision taken at a routing point of the session graph.
type Route string

const (
	RouteReady    Route = "ready"    // Setup finished, waiting for the trainee's first message
	RouteContinue Route = "continue" // Run another guest turn
	RouteAwait    Route = "await"    // Invocation ends, session stays active
	RouteComplete Route = "complete" // Feedback generated, session over
	RouteError    Route = "error"    // Structural failure
)

const (
	// DefaultMaxTurns ends a session after this many guest turns.
	DefaultMaxTurns = 20
	// MaxCriticalErrors ends a session once this many critical errors were scored.
	MaxCriticalErrors = 3
)

// Rule is one row of the post-scoring routing table. Rules are evaluated in
// order and the first match wins.
type Rule struct {
	Name  string
	Match func(*schema.State) bool
	Route Route
}

// DefaultRules returns the routing table evaluated after every scoring pass.
func DefaultRules(maxTurns int) []Rule {
	return []Rule{
		{
			Name:  "critical_errors",
			Match: func(s *schema.State) bool { return s.CriticalErrorCount >= MaxCriticalErrors },
			Route: RouteComplete,
		},
		{
			Name:  "status_complete",
			Match: func(s *schema.State) bool { return s.Status == schema.StatusComplete },
			Route: RouteComplete,
		},
		{
			Name:  "max_turns",
			Match: func(s *schema.State) bool { return s.TurnCount >= maxTurns },
			Route: RouteComplete,
		},
		{
			Name: "steps_completed",
			Match: func(s *schema.State) bool {
				return len(s.RequiredSteps) > 0 && len(s.CompletedSteps) >= len(s.RequiredSteps)
			},
			Route: RouteComplete,
		},
		{
			Name:  "still_creating",
			Match: func(s *schema.State) bool { return s.Status == schema.StatusCreated },
			Route: RouteComplete,
		},
		{
			Name: "trainee_silent",
			Match: func(s *schema.State) bool {
				return !s.TraineeSinceLastGuestTurn() && !s.HasTraineeUtterance()
			},
			Route: RouteComplete,
		},
		{
			Name:  "awaiting_trainee",
			Match: func(s *schema.State) bool { return !s.TraineeSinceLastGuestTurn() },
			Route: RouteAwait,
		},
		{
			Name:  "default",
			Match: func(*schema.State) bool { return true },
			Route: RouteContinue,
		},
	}
}

// route evaluates rules against state. ok is false when no rule matched.
func route(rules []Rule, state *schema.State) (rule Rule, ok bool) {
	for _, r := range rules {
		if r.Match(state) {
			return r, true
		}
	}
	return Rule{}, false
}
