package dialogue

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionComplete is returned by Session.Next once the dialogue is over.
	ErrSessionComplete = errors.New("dialogue session complete")
	// ErrSessionActive is returned when a session is already running.
	ErrSessionActive = errors.New("dialogue session already active")
	// ErrNoParticipants is returned when starting a dialogue nobody joined.
	ErrNoParticipants = errors.New("dialogue has no participants")
	// ErrDuplicateParticipant is returned when a persona name is reused.
	ErrDuplicateParticipant = errors.New("participant already registered")
)

// UnknownParticipantError is returned when a model names a participant
// that is not part of the dialogue.
type UnknownParticipantError struct {
	Name string
}

func (e *UnknownParticipantError) Error() string {
	return fmt.Sprintf("unknown participant %q", e.Name)
}

// ParticipantError wraps the failure of one participant's turn.
type ParticipantError struct {
	Participant string
	Turn        int
	Err         error
}

func (e *ParticipantError) Error() string {
	return fmt.Sprintf("participant %s failed on turn %d: %v", e.Participant, e.Turn, e.Err)
}

func (e *ParticipantError) Unwrap() error { return e.Err }

// TurnTimeoutError is returned when a turn exceeds the configured timeout.
type TurnTimeoutError struct {
	Participant string
	Timeout     string
}

func (e *TurnTimeoutError) Error() string {
	return fmt.Sprintf("participant %s timed out after %s", e.Participant, e.Timeout)
}
