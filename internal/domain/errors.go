package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrLoadError            = errors.New("load error")
	ErrQueryError           = errors.New("query error")
	ErrStoreWrite           = errors.New("store write error")
)

// Error carries the kind of failure together with the operation and the source it concerns.
type Error struct {
	Kind   error
	Op     string
	Source string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Source != "" {
		msg += " [" + e.Source + "]"
	}
	if e.Err != nil && !errors.Is(e.Err, e.Kind) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// WrapError attaches a kind, operation and source to err. A nil err stays nil.
func WrapError(kind error, op, source string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Source: source, Err: err}
}

// Errorf builds a new kinded error from a format string.
func Errorf(kind error, op, source, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Source: source, Err: fmt.Errorf(format, args...)}
}

// SourceOf returns the source recorded on err, if any.
func SourceOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Source
	}
	return ""
}
