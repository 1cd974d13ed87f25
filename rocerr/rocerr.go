// Package rocerr defines the closed set of error kinds the channel core
// reports, with enough structured context attached for a caller to log or
// branch on without parsing a message string.
package rocerr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the core's failure modes occurred.
type Kind int

const (
	// Unknown is the zero value; never returned by this package.
	Unknown Kind = iota
	CardNotFound
	InvalidChannel
	BadParameter
	LockFailed
	FileLocked
	NamedMutexLocked
	BufferTooSmall
	SglEntryTooSmall
	DmaRegistrationFailed
	BadState
	BadSuperpage
	QueueFull
	QueueEmpty
	ArrivalError
	ResetFailed
	FirmwareMagicMismatch
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case CardNotFound:
		return "CardNotFound"
	case InvalidChannel:
		return "InvalidChannel"
	case BadParameter:
		return "BadParameter"
	case LockFailed:
		return "LockFailed"
	case FileLocked:
		return "FileLocked"
	case NamedMutexLocked:
		return "NamedMutexLocked"
	case BufferTooSmall:
		return "BufferTooSmall"
	case SglEntryTooSmall:
		return "SglEntryTooSmall"
	case DmaRegistrationFailed:
		return "DmaRegistrationFailed"
	case BadState:
		return "BadState"
	case BadSuperpage:
		return "BadSuperpage"
	case QueueFull:
		return "QueueFull"
	case QueueEmpty:
		return "QueueEmpty"
	case ArrivalError:
		return "ArrivalError"
	case ResetFailed:
		return "ResetFailed"
	case FirmwareMagicMismatch:
		return "FirmwareMagicMismatch"
	case Unavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// Error is the error type every core operation returns. Fields is an open
// bag of context (card id, channel number, offset, slot index, status
// word, ...) rendered into the message; callers that need a specific field
// back should match on Kind and re-derive it from their own call arguments
// rather than parsing Fields.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("rocdma: %s: %s", e.Kind, e.Message)
	for k, v := range e.Fields {
		msg += fmt.Sprintf(" %s=%v", k, v)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with the given kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error with the given kind, formatted message and cause.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// With attaches a context field and returns the receiver for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
