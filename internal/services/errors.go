package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to RPC callers.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not-found"
	KindInvalidArgument    ErrorKind = "invalid-argument"
	KindInvalidAmount      ErrorKind = "invalid-amount"
	KindInvalidState       ErrorKind = "invalid-state"
	KindAlreadyProcessed   ErrorKind = "already-processed"
	KindUnauthorized       ErrorKind = "unauthenticated"
	KindPermissionDenied   ErrorKind = "permission-denied"
	KindFailedPrecondition ErrorKind = "failed-precondition"
	KindInternal           ErrorKind = "internal"
)

// Error is a typed service error with a stable kind and a user-facing message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}
