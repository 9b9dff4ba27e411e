// Package models defines error kinds shared by the flow, the backend client and the views.
package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a flow instance failed.
type ErrorKind string

const (
	// ErrorKindInvalidInput means the submission was rejected before any network call.
	ErrorKindInvalidInput ErrorKind = "invalid_input"
	// ErrorKindNetwork covers transport failures, timeouts and non-2xx responses.
	ErrorKindNetwork ErrorKind = "network_error"
	// ErrorKindMalformedResponse means a response arrived but lacked required fields.
	ErrorKindMalformedResponse ErrorKind = "malformed_response"
)

// Sentinel errors matched by errors.Is against any *FlowError of the same kind.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNetwork           = errors.New("network error")
	ErrMalformedResponse = errors.New("malformed response")
)

// FlowError is the single error type surfaced by a flow instance.
type FlowError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewFlowError builds a FlowError for the given operation.
func NewFlowError(kind ErrorKind, op string, err error) *FlowError {
	return &FlowError{Kind: kind, Op: op, Err: err}
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNetwork) and friends match by kind.
func (e *FlowError) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == ErrorKindInvalidInput
	case ErrNetwork:
		return e.Kind == ErrorKindNetwork
	case ErrMalformedResponse:
		return e.Kind == ErrorKindMalformedResponse
	}
	return false
}

// KindOf returns the ErrorKind of err. Errors that are not FlowErrors count as network errors,
// since anything unclassified came from the transport side.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ErrorKindNetwork
}

// Malformed is shorthand for a MalformedResponse error.
func Malformed(op, format string, args ...any) *FlowError {
	return NewFlowError(ErrorKindMalformedResponse, op, fmt.Errorf(format, args...))
}
