package steg

import (
	"errors"
	"fmt"
)

// ExitCode represents categorized error codes
type ExitCode int

const (
	ExitCodeFormatError     ExitCode = 2
	ExitCodeCapacityError   ExitCode = 3
	ExitCodeCorruptionError ExitCode = 4
	ExitCodeIOError         ExitCode = 5
	ExitCodeInvalidMessage  ExitCode = 6
)

func (e ExitCode) String() string {
	switch e {
	case ExitCodeFormatError:
		return "FormatError"
	case ExitCodeCapacityError:
		return "CapacityError"
	case ExitCodeCorruptionError:
		return "CorruptionError"
	case ExitCodeIOError:
		return "IOError"
	case ExitCodeInvalidMessage:
		return "InvalidMessage"
	default:
		return fmt.Sprintf("ExitCode(%d)", int(e))
	}
}

// StegError represents an error from embedding or extraction
type StegError struct {
	Code    ExitCode
	Message string
	Err     error
}

func (e *StegError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StegError) Unwrap() error {
	return e.Err
}

// Is matches any StegError carrying the same code, so callers can write
// errors.Is(err, steg.ErrCapacity).
func (e *StegError) Is(target error) bool {
	t, ok := target.(*StegError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewStegError creates a new StegError
func NewStegError(code ExitCode, message string) *StegError {
	return &StegError{Code: code, Message: message}
}

func errorf(code ExitCode, format string, args ...interface{}) error {
	return &StegError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrapIO attaches an I/O cause to an IOError
func wrapIO(err error, message string) error {
	return &StegError{Code: ExitCodeIOError, Message: message, Err: err}
}

// IsStegError checks if an error is a StegError and returns it
func IsStegError(err error) (*StegError, bool) {
	var stegErr *StegError
	if errors.As(err, &stegErr) {
		return stegErr, true
	}
	return nil, false
}

// Common errors, usable as errors.Is targets
var (
	ErrFormat         = &StegError{Code: ExitCodeFormatError, Message: "malformed jpeg"}
	ErrCapacity       = &StegError{Code: ExitCodeCapacityError, Message: "message does not fit"}
	ErrCorruption     = &StegError{Code: ExitCodeCorruptionError, Message: "entropy stream corrupted"}
	ErrIO             = &StegError{Code: ExitCodeIOError, Message: "i/o failure"}
	ErrInvalidMessage = &StegError{Code: ExitCodeInvalidMessage, Message: "invalid message"}
)
