// Package simerr defines the error kinds reported by the simulation engine.
//
// Every user-visible failure carries a Kind so outer surfaces (CLI, HTTP
// server) can tell a rejected configuration apart from a fatal halt.
package simerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindConfiguration is an invalid tunable or spawn request. The engine
	// state is unchanged.
	KindConfiguration
	// KindLookup is a reference to an entity that does not exist.
	KindLookup
	// KindInvariant is an internal consistency failure. The engine halts.
	KindInvariant
	// KindCapacity is a request that would exceed a configured limit.
	KindCapacity
)

// String returns the kind's stable name.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration_error"
	case KindLookup:
		return "lookup_error"
	case KindInvariant:
		return "invariant_violation"
	case KindCapacity:
		return "capacity_error"
	default:
		return "unknown_error"
	}
}

// Error is an engine error with a kind and a human readable reason.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "set_parameter"
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Configuration returns a configuration error.
func Configuration(op, format string, args ...any) error {
	return newf(KindConfiguration, op, format, args...)
}

// Lookup returns a lookup error.
func Lookup(op, format string, args ...any) error {
	return newf(KindLookup, op, format, args...)
}

// Invariant returns an invariant violation.
func Invariant(op, format string, args ...any) error {
	return newf(KindInvariant, op, format, args...)
}

// Capacity returns a capacity error.
func Capacity(op, format string, args ...any) error {
	return newf(KindCapacity, op, format, args...)
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Reason: "failed", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reason returns the reason string of err without the op prefix.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
