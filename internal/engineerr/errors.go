// Package engineerr defines the engine's error taxonomy.
//
// Every failure surfaced across component boundaries is an *Error carrying
// one of the Kinds below; its Is method matches the Kind's sentinel, so
// callers can classify it with errors.Is even when it wraps another cause.
package engineerr

import "errors"

// Kind is one of the taxonomy's nine categories.
type Kind string

const (
	Validation       Kind = "validation"
	NotFound         Kind = "not_found"
	Conflict         Kind = "conflict"
	Navigation       Kind = "navigation"
	Parse            Kind = "parse"
	Transport        Kind = "transport"
	NoProxyAvailable Kind = "no_proxy_available"
	Cancelled        Kind = "cancelled"
	Internal         Kind = "internal"
)

// Sentinel errors, one per Kind, usable with errors.Is.
var (
	ErrValidation       = errors.New(string(Validation))
	ErrNotFound         = errors.New(string(NotFound))
	ErrConflict         = errors.New(string(Conflict))
	ErrNavigation       = errors.New(string(Navigation))
	ErrParse            = errors.New(string(Parse))
	ErrTransport        = errors.New(string(Transport))
	ErrNoProxyAvailable = errors.New(string(NoProxyAvailable))
	ErrCancelled        = errors.New(string(Cancelled))
	ErrInternal         = errors.New(string(Internal))
)

func sentinelFor(k Kind) error {
	switch k {
	case Validation:
		return ErrValidation
	case NotFound:
		return ErrNotFound
	case Conflict:
		return ErrConflict
	case Navigation:
		return ErrNavigation
	case Parse:
		return ErrParse
	case Transport:
		return ErrTransport
	case NoProxyAvailable:
		return ErrNoProxyAvailable
	case Cancelled:
		return ErrCancelled
	default:
		return ErrInternal
	}
}

// Error is a classified engine error carrying a Kind alongside the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return sentinelFor(e.Kind)
}

// Is lets errors.Is(err, engineerr.ErrTransport) match regardless of message/cause.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// New constructs a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies cause under kind, preserving it for errors.Unwrap / errors.As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
// Unclassified errors report Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Retryable reports whether the scheduler should treat this failure as
// eligible for a normal reschedule rather than a terminal outcome.
// NotFound, Validation, Conflict and Cancelled failures are not retryable;
// every other kind is retryable at the scheduler's discretion.
func Retryable(err error) bool {
	switch KindOf(err) {
	case NotFound, Validation, Conflict, Cancelled:
		return false
	default:
		return true
	}
}
