package schema

import "strings"

// Status is the lifecycle state of a training session.
type Status string

const (
	StatusCreated  Status = "created"  // Setup not finished yet
	StatusReady    Status = "ready"    // Scenario and persona presented, waiting for the trainee
	StatusActive   Status = "active"   // At least one guest turn has been simulated
	StatusComplete Status = "complete" // Feedback generated, terminal
	StatusError    Status = "error"    // Structural failure, terminal
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Speaker tags an utterance in the conversation log.
type Speaker string

const (
	SpeakerTrainee Speaker = "trainee"
	SpeakerGuest   Speaker = "guest"
	SpeakerSystem  Speaker = "system" // Notices only, never a conversation turn
)

// Difficulty is the scenario difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty maps the loose difficulty labels callers send
// ("beginner", "advanced", "hard", ...) onto the three scenario levels.
// Unknown labels fall back to Medium.
func ParseDifficulty(s string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner", "easy", "novice":
		return DifficultyEasy
	case "advanced", "expert", "hard":
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// ValidationLimits defines the constraints for generated artifacts.
const (
	TitleMin         = 3
	TitleMax         = 120
	ContextMin       = 10
	ContextMax       = 2000
	NameMin          = 1
	NameMax          = 80
	ListMin          = 1
	ListMax          = 12
	ScoreMin         = 0
	ScoreMax         = 100
	GuestResponseMin = 1
	GuestResponseMax = 2000
)
