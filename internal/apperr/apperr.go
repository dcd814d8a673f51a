package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Kind classifies an error for callers. Every error the engine returns maps
// to exactly one kind.
type Kind string

const (
	NotFound           Kind = "not_found"
	InvalidReference   Kind = "invalid_reference"
	InvalidState       Kind = "invalid_state"
	InvalidPriority    Kind = "invalid_priority"
	InvalidFormat      Kind = "invalid_format"
	EmptyComment       Kind = "empty_comment"
	Forbidden          Kind = "forbidden"
	StorageUnavailable Kind = "storage_unavailable"
)

// Error carries a taxonomy kind and a human-readable reason.
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

// New builds an Error with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the taxonomy kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool { return KindOf(err) == k }

// Storage maps a backing-store failure onto the taxonomy. Missing rows become
// NotFound; everything else (timeouts, broken connections) is surfaced as a
// retryable StorageUnavailable.
func Storage(err error, what string) *Error {
	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(NotFound, err, "%s not found", what)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(StorageUnavailable, err, "storage timeout on %s", what)
	}
	return Wrap(StorageUnavailable, err, "storage failure on %s", what)
}
