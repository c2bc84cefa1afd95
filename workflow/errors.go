package workflow

import (
	"context"
	"errors"
	"net"
	"net/http"

	openai "github.com/openai/openai-go"
)

var (
	ErrTurnInProgress     = errors.New("workflow: a turn is already in progress")
	ErrTurnClosed         = errors.New("workflow: turn closed before completion")
	ErrTurnNotFinished    = errors.New("workflow: turn has not been drained")
	ErrHistoryTruncated   = errors.New("workflow: runtime returned a history shorter than the turn input")
	ErrUnknownSpecialist  = errors.New("workflow: unknown specialist")
	ErrUnknownTool        = errors.New("workflow: unknown tool")
	ErrMalformedArguments = errors.New("workflow: malformed tool arguments")
	ErrInvalidArguments   = errors.New("workflow: tool arguments do not match the schema")
	ErrForbiddenHandoff   = errors.New("workflow: handoff edge not registered")
	ErrMaxSteps           = errors.New("workflow: max steps exceeded")

	ErrInvalidSpecialist   = errors.New("registry: invalid specialist")
	ErrDuplicateSpecialist = errors.New("registry: duplicate specialist")
	ErrDanglingHandoff     = errors.New("registry: handoff target is not registered")
	ErrMissingReturnEdge   = errors.New("registry: specialist cannot hand back to the entry specialist")
)

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as a recoverable external failure. A tool returning a
// transient error fails the whole turn instead of reporting the error text to
// the model.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a network, timeout, rate-limit or
// server-side failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
