package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Static errors for gateway client construction and argument checks.
var (
	// ErrBaseURLRequired is returned when the gateway base URL is empty.
	ErrBaseURLRequired = errors.New("gateway: base URL is required")
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("gateway: API key is required")
	// ErrHandleRequired is returned when an operation handle is empty.
	ErrHandleRequired = errors.New("gateway: operation handle is required")
	// ErrArtifactIDRequired is returned when an artifact id is empty.
	ErrArtifactIDRequired = errors.New("gateway: artifact ID is required")
)

// maxErrorBody caps how much of a failed response body is kept on a StatusError.
const maxErrorBody = 4096

// StatusError is returned when the gateway answers with a non-2xx status.
// It carries the status code and (truncated) body for diagnostics.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ContractError is returned when the gateway answers 2xx but the body does
// not have the expected shape.
type ContractError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: unexpected response: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("gateway: %s: unexpected response: %s", e.Op, e.Reason)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// NewContractError builds a ContractError. Callers that parse gateway
// payloads outside this package use it to report shape mismatches.
func NewContractError(op, reason string, err error) *ContractError {
	return &ContractError{Op: op, Reason: reason, Err: err}
}

// IsStatusError reports whether err wraps a StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// IsContractError reports whether err wraps a ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// Kind is the error class shown to users and written to logs.
type Kind string

const (
	KindNone     Kind = ""
	KindGateway  Kind = "GatewayError"
	KindContract Kind = "ContractError"
	KindCanceled Kind = "Canceled"
	KindInternal Kind = "InternalError"
)

// Classify maps an error returned by a Client to its Kind. Transport
// failures (DNS, connection reset) carry no status but still count as the
// gateway being unreachable.
func Classify(err error) Kind {
	var uerr *url.Error
	switch {
	case err == nil:
		return KindNone
	case IsContractError(err):
		return KindContract
	case IsStatusError(err):
		return KindGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &uerr):
		return KindGateway
	}
	return KindInternal
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "...(truncated)"
	}
	return string(b)
}
