package errors

import (
	stderrors "errors"
	"fmt"
)

// Failure kinds. Every error produced by the farming engines wraps exactly one
// of these so callers can classify with errors.Is.
var (
	ErrInvalidInput      = stderrors.New("invalid input")
	ErrUnauthorized      = stderrors.New("unauthorized")
	ErrInsufficientFunds = stderrors.New("insufficient funds")
	ErrInvalidState      = stderrors.New("invalid state")
	ErrExternalCall      = stderrors.New("external call failure")
	ErrStorage           = stderrors.New("storage failure")
)

var kinds = []error{
	ErrInvalidInput,
	ErrUnauthorized,
	ErrInsufficientFunds,
	ErrInvalidState,
	ErrExternalCall,
	ErrStorage,
}

// New returns a sentinel error tagged with the supplied kind.
func New(kind error, msg string) error {
	return fmt.Errorf("%s: %w", msg, kind)
}

// External wraps a collaborator failure so that it matches both ErrExternalCall
// and the original cause.
func External(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrExternalCall, cause)
}

// Storage tags a persistence failure.
func Storage(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, cause)
}

// Kind reports the failure kind wrapped by err. Unclassified errors yield nil.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName renders a short label for metrics and events.
func KindName(err error) string {
	switch Kind(err) {
	case ErrInvalidInput:
		return "invalid_input"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrInsufficientFunds:
		return "insufficient_funds"
	case ErrInvalidState:
		return "invalid_state"
	case ErrExternalCall:
		return "external_call"
	case ErrStorage:
		return "storage"
	case nil:
		if err == nil {
			return "none"
		}
	}
	return "unknown"
}
