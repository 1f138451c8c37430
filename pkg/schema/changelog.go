package schema

import "time"

// ChangelogEvent is one recorded state transition of a session.
type ChangelogEvent interface {
	EventType() string
	EventID() string
	Timestamp() time.Time
}

// SessionCreated records the initial state of a session.
type SessionCreated struct {
	EventID_   string    `json:"event_id" yaml:"event_id"`
	State      State     `json:"state" yaml:"state"`
	Timestamp_ time.Time `json:"timestamp" yaml:"timestamp"`
}

func (e *SessionCreated) EventType() string    { return "SessionCreated" }
func (e *SessionCreated) EventID() string      { return e.EventID_ }
func (e *SessionCreated) Timestamp() time.Time { return e.Timestamp_ }

// DeltaApplied records one orchestrator invocation's delta.
type DeltaApplied struct {
	EventID_   string    `json:"event_id" yaml:"event_id"`
	Delta      Delta     `json:"delta" yaml:"delta"`
	Trigger    string    `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Timestamp_ time.Time `json:"timestamp" yaml:"timestamp"`
}

func (e *DeltaApplied) EventType() string    { return "DeltaApplied" }
func (e *DeltaApplied) EventID() string      { return e.EventID_ }
func (e *DeltaApplied) Timestamp() time.Time { return e.Timestamp_ }
