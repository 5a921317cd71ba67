// Package errors defines the error kinds the engine can return. Every command
// surface operation fails with one of these instead of a generic error, so the
// shell can choose how to render the failure without string-matching messages.
package errors

import "fmt"

// Kind identifies the category of failure a [Error] represents.
type Kind string

const (
	NotFound          = Kind("no such file or directory")
	NotADirectory     = Kind("not a directory")
	NotAFile          = Kind("not a file")
	AlreadyExists     = Kind("already exists")
	NotEmpty          = Kind("directory not empty")
	InUse             = Kind("file is open")
	BadMode           = Kind("invalid open mode")
	NotOpen           = Kind("file is not open")
	NotOpenForRead    = Kind("file not open for reading")
	NotOpenForWrite   = Kind("file not open for writing")
	TooMany           = Kind("too many open files")
	OffsetTooLarge    = Kind("offset past end of file")
	NoSpace           = Kind("no space left on device")
	IOError           = Kind("input/output error")
	FileSystemCorrupted = Kind("file system corrupted")
)

// Error is a wrapper around a [Kind] with a customizable message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	message string
	cause   error
}

// New creates an Error whose message is the Kind's default description.
func New(kind Kind) *Error {
	return &Error{Kind: kind, message: string(kind)}
}

// Newf creates an Error with a custom, formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.message != "" {
		return e.message
	}
	return string(e.Kind)
}

// WithMessage returns a new Error of the same Kind with an appended message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		Kind:    e.Kind,
		message: fmt.Sprintf("%s: %s", e.Error(), message),
		cause:   e,
	}
}

// WrapError returns a new Error of the same Kind wrapping another error.
func (e *Error) WrapError(err error) *Error {
	return &Error{
		Kind:    e.Kind,
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		cause:   err,
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match against a bare Kind comparison as well as identical
// Error values, e.g. errors.Is(err, errors.New(errors.NotFound)).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
