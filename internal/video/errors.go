package video

import (
	"errors"
	"fmt"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/gateway"
)

// Phase is the terminal phase a Generate call ended in.
type Phase string

const (
	PhaseRejected       Phase = "REJECTED"
	PhaseStartFailed    Phase = "START_FAILED"
	PhasePollFailed     Phase = "POLL_FAILED"
	PhaseTimedOut       Phase = "TIMED_OUT"
	PhaseDownloadFailed Phase = "DOWNLOAD_FAILED"
	PhaseCanceled       Phase = "CANCELED"
)

// ErrTimedOut is wrapped when the poll budget is exhausted. The remote
// operation may still be running.
var ErrTimedOut = errors.New("video: operation did not complete within the poll budget")

// OperationError is returned when the gateway reports that the remote
// operation itself finished unsuccessfully (provider error or content filter).
type OperationError struct {
	Code    int
	Message string
}

func (e *OperationError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("video: operation failed: code %d: %s", e.Code, e.Message)
	}
	return "video: operation failed: " + e.Message
}

// Error is returned by Orchestrator.Generate for every failure. Err holds
// the cause: a *ValidationError, *gateway.StatusError, *gateway.ContractError,
// *OperationError, ErrTimedOut or a context error.
type Error struct {
	Phase    Phase
	Handle   string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Handle == "" {
		return fmt.Sprintf("video generation %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("video generation %s (operation %s, %d polls): %v", e.Phase, e.Handle, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind is the error class shown to users and written to logs. It extends
// the gateway classes with the ones only a generation can produce.
type Kind = gateway.Kind

const (
	KindNone       Kind = gateway.KindNone
	KindGateway    Kind = gateway.KindGateway
	KindContract   Kind = gateway.KindContract
	KindCanceled   Kind = gateway.KindCanceled
	KindInternal   Kind = gateway.KindInternal
	KindValidation Kind = "ValidationError"
	KindTimeout    Kind = "TimedOut"
	KindOperation  Kind = "OperationFailed"
)

// Classify maps any error returned by this package to its Kind.
func Classify(err error) Kind {
	var (
		verr *ValidationError
		oerr *OperationError
	)
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &oerr):
		return KindOperation
	case errors.Is(err, ErrTimedOut):
		return KindTimeout
	}

	kind := gateway.Classify(err)
	if kind != KindInternal {
		return kind
	}
	var verror *Error
	if errors.As(err, &verror) {
		switch verror.Phase {
		case PhaseStartFailed, PhasePollFailed, PhaseDownloadFailed:
			return KindGateway
		}
	}
	return KindInternal
}
