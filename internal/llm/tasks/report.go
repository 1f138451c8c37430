package tasks

// Tier records which level of the fallback chain produced a stage result.
type Tier string

const (
	TierSkipped   Tier = "skipped"   // Skip check matched, nothing ran
	TierPrimary   Tier = "primary"   // Full prompt succeeded
	TierSecondary Tier = "secondary" // Reduced generic prompt succeeded
	TierMinimal   Tier = "minimal"   // Hard-coded artifact, no external call
	TierLocal     Tier = "local"     // Deterministic step that never calls out
)

// Failure is one absorbed generation failure.
type Failure struct {
	Tier    Tier   `json:"tier"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// Report describes how a stage produced its delta. Recoverable generation
// failures surface here rather than as errors.
type Report struct {
	Stage    string    `json:"stage"`
	Tier     Tier      `json:"tier"`
	Failures []Failure `json:"failures,omitempty"`
}

// Degraded reports whether the stage fell back past its primary prompt.
func (r Report) Degraded() bool {
	return r.Tier == TierSecondary || r.Tier == TierMinimal
}
