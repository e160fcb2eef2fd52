package common

import (
	"errors"

	farmerrors "yieldcore/core/errors"
)

// OutcomeKind classifies the result of a best-effort step.
type OutcomeKind uint8

const (
	OutcomeOK OutcomeKind = iota
	// OutcomeRecoverable means the step failed but the enclosing call may
	// proceed after logging the reason.
	OutcomeRecoverable
	// OutcomeFatal means the enclosing call must abort.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the explicit result of a best-effort step.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// OK reports whether the step succeeded.
func (o Outcome) OK() bool { return o.Kind == OutcomeOK }

// Reason renders the failure for logs and events.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Classify converts err into an Outcome. Storage failures and reentrancy are
// fatal; every other failure kind is recoverable.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeOK}
	}
	if errors.Is(err, farmerrors.ErrStorage) || errors.Is(err, ErrReentrant) {
		return Outcome{Kind: OutcomeFatal, Err: err}
	}
	return Outcome{Kind: OutcomeRecoverable, Err: err}
}
