package errs

import (
	"context"
	"errors"
)

// Code is an interaction error code.
type Code string

const (
	ConditionTimeout    Code = "condition_timeout"
	InteractionFailed   Code = "interaction_failed"
	AssertionMismatch   Code = "assertion_mismatch"
	UnexpectedlyVisible Code = "unexpectedly_visible"
	InvalidArgument     Code = "invalid_argument"
	NotFound            Code = "not_found"
	Unavailable         Code = "unavailable"
	Unexpected          Code = "unexpected"
)

// ErrUnexpectedlyVisible is matched by errors.Is for every UnexpectedlyVisible error.
var ErrUnexpectedlyVisible = errors.New("element unexpectedly visible")

// Error is a coded interaction error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports UnexpectedlyVisible errors as ErrUnexpectedlyVisible.
func (e *Error) Is(target error) bool {
	return e != nil && target == ErrUnexpectedlyVisible && e.Code == UnexpectedlyVisible
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// Timeout wraps cause as a ConditionTimeout error.
func Timeout(message string, cause error) error {
	return Wrap(ConditionTimeout, message, cause)
}

// CodeOf returns the error code. Uncoded deadline errors map to ConditionTimeout,
// everything else uncoded to Unexpected.
func CodeOf(err error) Code {
	if err == nil {
		return Unexpected
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Unexpected
		}
		return coded.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ConditionTimeout
	}
	return Unexpected
}

// MessageOf returns the coded message, or the raw error text for uncoded errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}
