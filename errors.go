package mport

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the mport error domain type.
//
// Errors coming from mport components should be inspectable as
// ([errors.As]) an *Error at some point in the error chain. Components
// should create an Error at the system boundary (a failed store write,
// a subprocess exit, an archive read) and intermediate layers should
// prefer [fmt.Errorf] with a "%w" verb over wrapping in another Error.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Op      string
	Pkg     string
	Message string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrFatal, ErrWarn:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]")
	if e.Pkg != "" {
		b.WriteString(" ")
		b.WriteString(e.Pkg)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Inner != nil {
		b.WriteString(": ")
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is] against the sentinel ErrorKind values.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind distinguishes the two propagation kinds spec'd for this
// system: a Fatal error short-circuits the current operation and rolls
// back any open transaction, a Warn is recorded and the batch continues.
// "Ok" is never a Kind value — it is simply a nil error.
type ErrorKind string

// Error implements error so ErrorKind can itself be compared with
// [errors.Is].
func (k ErrorKind) Error() string { return string(k) }

// Defined error kinds.
const (
	ErrFatal ErrorKind = "fatal"
	ErrWarn  ErrorKind = "warn"
)

// Fatalf builds a Fatal *Error.
func Fatalf(op, pkg string, inner error, format string, args ...any) *Error {
	return &Error{Op: op, Pkg: pkg, Kind: ErrFatal, Message: fmt.Sprintf(format, args...), Inner: inner}
}

// Warnf builds a Warn *Error.
func Warnf(op, pkg string, inner error, format string, args ...any) *Error {
	return &Error{Op: op, Pkg: pkg, Kind: ErrWarn, Message: fmt.Sprintf(format, args...), Inner: inner}
}

// IsFatal reports whether err is, or wraps, a Fatal *Error.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == ErrFatal
}

// IsWarn reports whether err is, or wraps, a Warn *Error.
func IsWarn(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == ErrWarn
}
