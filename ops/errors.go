package ops

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures at the public boundary.
type ErrorKind string

const (
	InvalidDocument        ErrorKind = "InvalidDocument"
	MissingOperationKind   ErrorKind = "MissingOperationKind"
	InvalidOperationFormat ErrorKind = "InvalidOperationFormat"
	UnsupportedOperation   ErrorKind = "UnsupportedOperation"
	OperationFailed        ErrorKind = "OperationFailed"
	GenerationFailed       ErrorKind = "GenerationFailed"
)

// NoPosition marks an Error that is not tied to a list element.
const NoPosition = -1

// Error is the structured error returned by Normalize, the pipeline and the
// generator.
type Error struct {
	Kind     ErrorKind
	Op       string // operation kind, when known
	Position int    // zero-based element position, or NoPosition
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		fmt.Fprintf(&b, " (%s)", e.Op)
	}
	if e.Position >= 0 {
		fmt.Fprintf(&b, " at position %d", e.Position)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error with a formatted message.
func Errorf(kind ErrorKind, op string, pos int, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Position: pos, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a cause.
func Wrap(kind ErrorKind, op string, pos int, err error) *Error {
	return &Error{Kind: kind, Op: op, Position: pos, Err: err}
}

// IsKind reports whether err carries an *Error of the given kind anywhere in
// its chain.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
