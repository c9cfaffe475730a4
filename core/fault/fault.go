// Package fault classifies errors crossing the core boundary so the HTTP
// layer can map them to status codes without inspecting messages.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind buckets an error by how callers should treat it.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDomain     Kind = "domain"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// Error carries a kind alongside the message and an optional cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// Kind reports the classification of the error.
func (e *Error) Kind() Kind { return e.kind }

func newf(kind Kind, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	return &Error{kind: kind, msg: err.Error(), err: errors.Unwrap(err)}
}

// Validationf builds a rule or input rejection.
func Validationf(format string, args ...any) error { return newf(KindValidation, format, args...) }

// Domainf builds a business-rule failure (insufficient balance, illegal
// transition, not-owner, missing packet or listing).
func Domainf(format string, args ...any) error { return newf(KindDomain, format, args...) }

// Authf builds an authentication failure.
func Authf(format string, args ...any) error { return newf(KindAuth, format, args...) }

// Forbiddenf builds an authorization failure such as an actor mismatch.
func Forbiddenf(format string, args ...any) error { return newf(KindForbidden, format, args...) }

// NotFoundf builds a missing-resource failure.
func NotFoundf(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// Conflictf builds a concurrent-update or unique-constraint failure.
func Conflictf(format string, args ...any) error { return newf(KindConflict, format, args...) }

// Internalf wraps a store or broadcaster failure.
func Internalf(format string, args ...any) error { return newf(KindInternal, format, args...) }

// KindOf reports the kind of err, defaulting to internal for unclassified
// errors so infrastructure failures never surface as client mistakes.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindInternal
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindDomain:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
