// Package apperr defines the kind-tagged error value that carries an HTTP
// status from deep inside the engine to the single point where requests are
// answered.
//
// Deep callers return an *Error (or wrap one with %w); the dispatcher maps it
// once with [Status] and [Message]. Errors without a kind are unexpected and
// map to 500.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindInternal is the zero kind: an unexpected failure.
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindTokenExpired
	KindForbidden
	KindNotFound
	KindConflict
	KindBadSignature
	KindRateLimited
)

// StatusTokenExpired tells clients that the access token expired and the
// refresh flow should run. It is not a registered HTTP status.
const StatusTokenExpired = 498

var kindNames = [...]string{
	KindInternal:     "internal",
	KindValidation:   "validation",
	KindAuth:         "auth",
	KindTokenExpired: "token_expired",
	KindForbidden:    "forbidden",
	KindNotFound:     "not_found",
	KindConflict:     "conflict",
	KindBadSignature: "bad_signature",
	KindRateLimited:  "rate_limited",
}

var kindStatus = [...]int{
	KindInternal:     http.StatusInternalServerError,
	KindValidation:   http.StatusBadRequest,
	KindAuth:         http.StatusUnauthorized,
	KindTokenExpired: StatusTokenExpired,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindBadSignature: http.StatusNotAcceptable,
	KindRateLimited:  http.StatusTooManyRequests,
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Status returns the HTTP status for the kind.
func (k Kind) Status() int {
	if int(k) < len(kindStatus) {
		return kindStatus[k]
	}
	return http.StatusInternalServerError
}

// Error is a failure with a kind and a client-safe message. Err, when set, is
// the underlying cause; it is never shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an *Error of the given kind that keeps err as its cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and message, so package-level sentinels
// keep matching after Wrap adds a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Validation, Auth and the other helpers are shorthands for New.
func Validation(message string) *Error { return New(KindValidation, message) }
func Auth(message string) *Error       { return New(KindAuth, message) }
func Forbidden(message string) *Error  { return New(KindForbidden, message) }
func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Conflict(message string) *Error   { return New(KindConflict, message) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps err to an HTTP status. Untagged errors are 500.
func Status(err error) int {
	return KindOf(err).Status()
}

// Message returns the client-safe message for err. Untagged errors never
// leak their text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Message != "" {
		return e.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}
