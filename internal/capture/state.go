package capture

import (
	"errors"
	"fmt"
)

// State is one step of the capture lifecycle.
type State string

// Capture states.
const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateExtracting   State = "extracting"
	StateError        State = "error"
)

// transitions lists the legal successors of every state. error is reachable
// from every active state and only reset leaves it.
var transitions = map[State][]State{
	StateIdle:         {StateRecording},
	StateRecording:    {StateTranscribing, StateError},
	StateTranscribing: {StateExtracting, StateError},
	StateExtracting:   {StateIdle, StateError},
	StateError:        {StateIdle},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether a capture is in flight in this state.
func (s State) Active() bool {
	return s == StateRecording || s == StateTranscribing || s == StateExtracting
}

// ─── Errors ──────────────────────────────────────────────────────────────────

// ErrInvalidStateTransition is returned when an operation is called in a
// state that does not allow it. It signals caller misuse.
var ErrInvalidStateTransition = errors.New("capture: invalid state transition")

// ErrNoContact is the failure reason when a capture reaches commit without a
// contact to attach the note to.
var ErrNoContact = errors.New("no contact selected")

func invalidTransition(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
}

// TranscriptionError wraps a failure of the transcription collaborator.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return "transcription failed: " + e.Err.Error() }

func (e *TranscriptionError) Unwrap() error { return e.Err }

// ExtractionError wraps a failure of the extraction collaborator.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "extraction failed: " + e.Err.Error() }

func (e *ExtractionError) Unwrap() error { return e.Err }
