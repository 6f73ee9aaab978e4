// Package errs provides the unified error type used across all of ocket.
//
// Every backend driver (MinIO, S3, SQL, local filesystem, …) wraps its native
// errors into *errs.Error before returning them to callers. Decorators never
// change the Kind of an error they pass through. Callers use the Is*
// predicates to branch without importing driver-specific packages.
//
// Usage:
//
//	// In a driver, classify native errors:
//	return errs.Wrap(errs.ErrKindTransient, "put object failed", sdkErr)
//
//	// In a caller, check the error kind:
//	if errs.IsNotFound(err) {
//	    return defaultContent, nil
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing provider-specific codes.
// All backends map their native errors to exactly one of these kinds.
type ErrKind int

const (
	ErrKindUnknown      ErrKind = iota
	ErrKindNotFound             // no such object or bucket
	ErrKindTransient            // network blip, throttling, 5xx: worth retrying
	ErrKindPermanent            // bad credentials, malformed request: retrying cannot help
	ErrKindIllegalUsage         // empty names, iterator misuse
	ErrKindState                // listing page fetch failed; no single key implicated
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindTransient:
		return "transient"
	case ErrKindPermanent:
		return "permanent"
	case ErrKindIllegalUsage:
		return "illegal_usage"
	case ErrKindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all ocket subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err says the addressed object or bucket is absent.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTransient reports whether err is plausibly resolved by retrying.
//
// A State error (failed listing page) is transient when its cause is, so the
// retry decorator can re-issue the same page fetch.
func IsTransient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Kind == ErrKindState {
		return IsTransient(e.Cause)
	}
	return e.Kind == ErrKindTransient
}

// IsPermanent reports whether err is a backend failure retrying cannot fix.
func IsPermanent(err error) bool {
	return KindOf(err) == ErrKindPermanent
}

// IsIllegalUsage reports whether err was caused by a programming mistake of
// the caller (empty name, reading past the end of an iterator, …).
func IsIllegalUsage(err error) bool {
	return KindOf(err) == ErrKindIllegalUsage
}

// IsState reports whether err is a listing failure that implicates no
// single key.
func IsState(err error) bool {
	return KindOf(err) == ErrKindState
}

// KindOf extracts the outermost ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
