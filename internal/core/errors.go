package core

import (
	"errors"
	"fmt"
)

var (
	// ErrRoutingExhausted means no routing rule matched after scoring.
	ErrRoutingExhausted = errors.New("routing exhausted")
	// ErrSessionTerminal means a trigger reached a complete or errored session.
	ErrSessionTerminal = errors.New("session is terminal")
	// ErrMissingArtifact means the loop was entered without scenario or persona.
	ErrMissingArtifact = errors.New("scenario or persona missing")
)

// SessionErrorKind classifies a structural session failure.
type SessionErrorKind string

const (
	KindTerminal         SessionErrorKind = "terminal"
	KindMissingArtifact  SessionErrorKind = "missing_artifact"
	KindRoutingExhausted SessionErrorKind = "routing_exhausted"
)

// SessionError is returned alongside a well-formed Outcome when a trigger
// cannot proceed.
type SessionError struct {
	SessionID string
	Kind      SessionErrorKind
	Message   string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("session %s %s: %s", e.SessionID, e.Kind, e.Message)
	}
	return fmt.Sprintf("session %s: %s", e.Kind, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// LockError represents a session locking error.
type LockError struct {
	Operation string
	Message   string
	Err       error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s: %s", e.Operation, e.Message)
}

func (e *LockError) Unwrap() error {
	return e.Err
}
