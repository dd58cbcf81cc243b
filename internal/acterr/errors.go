// Package acterr defines the error taxonomy used throughout the engine.
//
// Exception is the only kind carrying a user-facing error code; every
// other kind carries a single message. All kinds wrap an optional
// underlying cause and support errors.Is/As through Unwrap.
package acterr

import "fmt"

// Kind names the error category, mirroring the original engine's
// ActError enum (Config, Convert, Script, Exception, Model, Runtime,
// Store, Action, Io, Package).
type Kind string

const (
	KindConfig    Kind = "config"
	KindConvert   Kind = "convert"
	KindScript    Kind = "script"
	KindException Kind = "exception"
	KindModel     Kind = "model"
	KindRuntime   Kind = "runtime"
	KindStore     Kind = "store"
	KindAction    Kind = "action"
	KindIO        Kind = "io"
	KindPackage   Kind = "package"
)

// Error is the engine's single error type, tagged by Kind.
type Error struct {
	Kind    Kind
	Message string
	// Ecode is only meaningful for KindException; it is the field a
	// catch hook matches against (§4.5, §7).
	Ecode string
	Cause error
}

func (e *Error) Error() string {
	if e.Kind == KindException {
		return fmt.Sprintf("ecode: %s, message: %s", e.Ecode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf returns the Kind of err when err is or wraps an *Error, and
// false otherwise; callers compare the result against a KindX constant.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewException builds a user-facing Exception error: the only kind
// with an error code a Catch hook can match on (§4.5, §7).
func NewException(ecode, message string) *Error {
	return &Error{Kind: KindException, Ecode: ecode, Message: message}
}

func Config(format string, args ...any) *Error {
	return New(KindConfig, fmt.Sprintf(format, args...))
}

func Convert(format string, args ...any) *Error {
	return New(KindConvert, fmt.Sprintf(format, args...))
}

func Script(format string, args ...any) *Error {
	return New(KindScript, fmt.Sprintf(format, args...))
}

func Model(format string, args ...any) *Error {
	return New(KindModel, fmt.Sprintf(format, args...))
}

func Runtime(format string, args ...any) *Error {
	return New(KindRuntime, fmt.Sprintf(format, args...))
}

func Store(format string, args ...any) *Error {
	return New(KindStore, fmt.Sprintf(format, args...))
}

func Action(format string, args ...any) *Error {
	return New(KindAction, fmt.Sprintf(format, args...))
}

func IO(format string, args ...any) *Error {
	return New(KindIO, fmt.Sprintf(format, args...))
}

func Package(format string, args ...any) *Error {
	return New(KindPackage, fmt.Sprintf(format, args...))
}
