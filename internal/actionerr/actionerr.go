// Package actionerr classifies failures of the action pipeline.
package actionerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bazaar-mp/project/internal/contracts"
)

var (
	ErrMissingParam        = errors.New("missing parameter")
	ErrInvalidParam        = errors.New("invalid parameter")
	ErrHashMismatch        = errors.New("hash mismatch")
	ErrValidation          = errors.New("validation failed")
	ErrWrongType           = errors.New("wrong action type")
	ErrPreconditionNotMet  = errors.New("precondition not met")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrMessageTooLarge     = errors.New("message too large")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotImplemented      = errors.New("not implemented")
	ErrTransport           = errors.New("transport failure")
)

// Error ties a failure kind to the action type and field it concerns.
type Error struct {
	Kind   error
	Action contracts.ActionType
	Field  string
	Err    error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Action != "" {
		parts = append(parts, string(e.Action))
	}
	parts = append(parts, e.Kind.Error())
	if e.Field != "" {
		parts = append(parts, e.Field)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel. Wrong type, unmet preconditions and bad
// signatures are also validation failures.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	if target == ErrValidation {
		return e.Kind == ErrWrongType || e.Kind == ErrPreconditionNotMet || e.Kind == ErrInvalidSignature
	}
	return false
}

func newError(kind error, action contracts.ActionType, field string, err error) *Error {
	return &Error{Kind: kind, Action: action, Field: field, Err: err}
}

func MissingParam(action contracts.ActionType, field string) error {
	return newError(ErrMissingParam, action, field, nil)
}

func InvalidParam(action contracts.ActionType, field, format string, args ...any) error {
	return newError(ErrInvalidParam, action, field, fmt.Errorf(format, args...))
}

func HashMismatch(action contracts.ActionType, field, expected, actual string) error {
	return newError(ErrHashMismatch, action, field, fmt.Errorf("expected %s, got %s", expected, actual))
}

func Validation(action contracts.ActionType, field, format string, args ...any) error {
	return newError(ErrValidation, action, field, fmt.Errorf(format, args...))
}

func WrongType(expected, actual contracts.ActionType) error {
	return newError(ErrWrongType, expected, "type", fmt.Errorf("got %q", actual))
}

func PreconditionNotMet(action contracts.ActionType, field, format string, args ...any) error {
	return newError(ErrPreconditionNotMet, action, field, fmt.Errorf(format, args...))
}

func InvalidSignature(action contracts.ActionType, field string) error {
	return newError(ErrInvalidSignature, action, field, nil)
}

func TooLarge(action contracts.ActionType, class contracts.SizeClass, size, budget int) error {
	return newError(ErrMessageTooLarge, action, "", fmt.Errorf("%s message is %d bytes, budget is %d", class, size, budget))
}

func InsufficientBalance(action contracts.ActionType, fee, balance int64) error {
	return newError(ErrInsufficientBalance, action, "", fmt.Errorf("fee %d exceeds balance %d", fee, balance))
}

func NotImplemented(action contracts.ActionType, what string) error {
	return newError(ErrNotImplemented, action, what, nil)
}

func Transport(action contracts.ActionType, op string, err error) error {
	return newError(ErrTransport, action, op, err)
}

// Retryable reports whether a caller may retry the operation that produced err.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
