package entities

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an operation failure so callers can decide whether a
// retry can ever succeed. Timing failures clear on their own; authorization,
// duplicate-action and referential failures never do.
type ErrorKind string

const (
	ErrorKindAuthorization     ErrorKind = "authorization"
	ErrorKindStatePrecondition ErrorKind = "state_precondition"
	ErrorKindTiming            ErrorKind = "timing"
	ErrorKindDuplicateAction   ErrorKind = "duplicate_action"
	ErrorKindReferential       ErrorKind = "referential"
)

// OperationError is a failed precondition on a pool operation. Operations
// that return one have made no state change.
type OperationError struct {
	Kind ErrorKind
	msg  string
}

func (e *OperationError) Error() string {
	return e.msg
}

// KindOf returns the error kind of err, or "" if err is not an OperationError.
func KindOf(err error) ErrorKind {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return ""
}

func authorizationError(format string, args ...any) *OperationError {
	return &OperationError{Kind: ErrorKindAuthorization, msg: fmt.Sprintf(format, args...)}
}

func stateError(format string, args ...any) *OperationError {
	return &OperationError{Kind: ErrorKindStatePrecondition, msg: fmt.Sprintf(format, args...)}
}

func timingError(format string, args ...any) *OperationError {
	return &OperationError{Kind: ErrorKindTiming, msg: fmt.Sprintf(format, args...)}
}

func duplicateError(format string, args ...any) *OperationError {
	return &OperationError{Kind: ErrorKindDuplicateAction, msg: fmt.Sprintf(format, args...)}
}

func referentialError(format string, args ...any) *OperationError {
	return &OperationError{Kind: ErrorKindReferential, msg: fmt.Sprintf(format, args...)}
}

// NewAuthorizationError reports a caller lacking a required capability.
// Exposed for the service layer, which owns capability checks.
func NewAuthorizationError(format string, args ...any) *OperationError {
	return authorizationError(format, args...)
}

// NewStateError reports an operation invoked outside its valid lifecycle state.
func NewStateError(format string, args ...any) *OperationError {
	return stateError(format, args...)
}

// NewReferentialError reports an unknown participant, token or index.
func NewReferentialError(format string, args ...any) *OperationError {
	return referentialError(format, args...)
}
