// Package apperr implements the error taxonomy from spec §7: a small set
// of typed/sentinel errors the HTTP boundary (out of scope here) and the
// background workers branch on, plus the soft/hard remote-failure split
// that decides whether an error propagates to a Request row or is
// swallowed.
package apperr

import "fmt"

// Kind tags an error with one of the taxonomy's synchronous classes.
// Soft and hard remote failures are not Kinds: soft failures are swallowed
// by the component that saw them and never reach this package; hard
// failures are recorded directly as a models.Failed(...) status rather than
// returned as an apperr.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindMisconfigured Kind = "misconfigured"
)

// Error is a typed application error carrying a Kind for the HTTP
// boundary (out of scope here) to branch its status code on.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, apperr.NotFound("")) style comparisons by Kind
// alone, ignoring Msg/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func Validation(msg string) error    { return &Error{Kind: KindValidation, Msg: msg} }
func NotFound(msg string) error      { return &Error{Kind: KindNotFound, Msg: msg} }
func Conflict(msg string) error      { return &Error{Kind: KindConflict, Msg: msg} }
func Misconfigured(msg string) error { return &Error{Kind: KindMisconfigured, Msg: msg} }

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}
