// Package failure classifies errors crossing a component boundary.
//
// Network failures are transient and retried; validation failures mean a
// response had the wrong shape; conflict failures mean local and server state
// disagree and the caller must resync. Deadline expiry is never an error.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
)

var (
	ErrNetwork    = errors.New("network failure")
	ErrValidation = errors.New("validation failure")
	ErrConflict   = errors.New("conflict failure")
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

func Network(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func Conflict(op string, err error) error {
	return &Error{Kind: KindConflict, Op: op, Err: err}
}

// KindOf returns the classification of err, if any.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// Visible reports whether err should reach the presentation layer as a
// user-facing error.
func Visible(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}

// RollsBack reports whether a pending local value must be discarded.
func RollsBack(err error) bool {
	return Visible(err)
}
