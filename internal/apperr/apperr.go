// Package apperr defines memscreend's closed error taxonomy. Every
// component surfaces one of these kinds rather than an ad-hoc error string,
// so the HTTP layer can map failures to a status code in one place.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories components may surface.
type Kind string

const (
	InvalidArgument     Kind = "invalid_argument"
	Busy                Kind = "busy"
	NotFound            Kind = "not_found"
	RuntimeUnavailable  Kind = "runtime_unavailable"
	EncoderUnavailable  Kind = "encoder_unavailable"
	StorageUnavailable  Kind = "storage_unavailable"
	ConstraintViolation Kind = "constraint_violation"
	TargetGone          Kind = "target_gone"
	Cancelled           Kind = "cancelled"
	Internal            Kind = "internal"
)

// E wraps an underlying error with a Kind for taxonomy-based handling.
type E struct {
	Kind Kind
	Err  error
}

func (e *E) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *E) Unwrap() error { return e.Err }

// New builds an *E with the given kind wrapping err.
func New(kind Kind, err error) *E {
	return &E{Kind: kind, Err: err}
}

// Newf builds an *E with the given kind and a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}
