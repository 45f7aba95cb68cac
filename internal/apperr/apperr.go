// Package apperr defines the error taxonomy shared by the quiz session core
// and the HTTP/WebSocket layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller must react to it.
type Kind int

const (
	// KindValidation is recoverable by the user (solve the captcha again, retry).
	KindValidation Kind = iota + 1
	// KindNotFound aborts the session (quiz missing or closed).
	KindNotFound
	// KindConflict means the action can never succeed for this user (already submitted).
	KindConflict
	// KindPersistence is a failed write; the draft is kept and the user may retry.
	KindPersistence
	// KindNotification is a best-effort delivery failure. Never surfaced.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Error is a classified application error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrCaptchaRequired  = &Error{Kind: KindValidation, Msg: "captcha required"}
	ErrCaptchaFailed    = &Error{Kind: KindValidation, Msg: "captcha failed"}
	ErrCaptchaExpired   = &Error{Kind: KindValidation, Msg: "captcha expired"}
	ErrSubmitInFlight   = &Error{Kind: KindValidation, Msg: "submission already in progress"}
	ErrQuizNotFound     = &Error{Kind: KindNotFound, Msg: "quiz not found"}
	ErrQuizClosed       = &Error{Kind: KindNotFound, Msg: "quiz is closed"}
	ErrAlreadySubmitted = &Error{Kind: KindConflict, Msg: "application already submitted for this quiz"}
)

// Validation builds a user-recoverable error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a session-aborting error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Persistence wraps a storage failure. The message is the cause's message,
// unchanged, so it can be shown to the user verbatim.
func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Msg: err.Error(), Err: err}
}

// Notification wraps a delivery failure.
func Notification(err error) *Error {
	return &Error{Kind: KindNotification, Msg: "notification failed: " + err.Error(), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
