package video

import (
	"errors"
	"time"
)

// State is the lifecycle state of a remote generation operation.
type State string

const (
	// StateStarted indicates the gateway accepted the start call.
	StateStarted State = "STARTED"
	// StatePolling indicates the operation is being polled.
	StatePolling State = "POLLING"
	// StateSucceeded indicates the operation completed with a result.
	StateSucceeded State = "SUCCEEDED"
	// StateFailed indicates polling failed or the operation finished with an error.
	StateFailed State = "FAILED"
	// StateTimedOut indicates the attempt budget ran out before completion.
	StateTimedOut State = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("video: invalid operation state transition")

var validTransitions = map[State][]State{
	StateStarted:   {StatePolling, StateSucceeded, StateFailed},
	StatePolling:   {StatePolling, StateSucceeded, StateFailed, StateTimedOut},
	StateSucceeded: {},
	StateFailed:    {},
	StateTimedOut:  {},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the state is final.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// Operation tracks one started generation. It is owned by the Generate call
// that created it and is never shared.
type Operation struct {
	Handle    string
	State     State
	Attempts  int
	StartedAt time.Time
	// ArtifactRef is the remote URI of the result, set on success.
	ArtifactRef string
}

func newOperation(handle string, now time.Time) *Operation {
	return &Operation{
		Handle:    handle,
		State:     StateStarted,
		StartedAt: now,
	}
}

func (o *Operation) transitionTo(s State) error {
	if !canTransition(o.State, s) {
		return ErrInvalidTransition
	}
	o.State = s
	return nil
}

// recordAttempt moves the operation into (or keeps it in) Polling and counts one poll.
func (o *Operation) recordAttempt() error {
	if err := o.transitionTo(StatePolling); err != nil {
		return err
	}
	o.Attempts++
	return nil
}

func (o *Operation) succeed(ref string) error {
	if err := o.transitionTo(StateSucceeded); err != nil {
		return err
	}
	o.ArtifactRef = ref
	return nil
}
