package reserve

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/types"
	"yieldcore/observability/metrics"
)

var (
	errNilState = fmt.Errorf("reserve ledger: state not configured: %w", farmerrors.ErrInvalidState)

	ErrInvalidAmount = farmerrors.New(farmerrors.ErrInvalidInput, "reserve: amount must be positive")
	// ErrInsufficientReserves is returned when a debit exceeds the protocol
	// reserves. Debits never clamp.
	ErrInsufficientReserves = farmerrors.New(farmerrors.ErrInsufficientFunds, "reserve: insufficient protocol reserves")
	ErrNotOwner             = farmerrors.New(farmerrors.ErrUnauthorized, "reserve: caller is not the ledger owner")
)

const (
	ReasonBonusIssued = "bonus_issued"
	ReasonEmission    = "emission"
	ReasonRevenue     = "revenue"
	ReasonEmptyList   = "empty_participants"
	ReasonFunded      = "funded"
	ReasonReleased    = "released"
)

type engineState interface {
	Reserves() (*types.ReserveLedger, error)
	PutReserves(ledger *types.ReserveLedger) error
	Atomic(fn func() error) error
	OnCommit(fn func())
	Emit(events.Event)
}

// TokenMover is the slice of the subsidy token the ledger needs to move
// treasury balances.
type TokenMover interface {
	Transfer(from, to common.Address, amount *big.Int) error
}

// Ledger books the protocol-held subsidy token counters. The tokens
// themselves sit at the treasury address; the counters say how much of that
// balance each purpose may claim.
type Ledger struct {
	state    engineState
	tokens   TokenMover
	owner    common.Address
	treasury common.Address
	metrics  *metrics.FarmingMetrics
}

// NewLedger constructs a reserve ledger owned by owner whose backing tokens
// live at treasury.
func NewLedger(owner, treasury common.Address) *Ledger {
	return &Ledger{owner: owner, treasury: treasury, metrics: metrics.Farming()}
}

// SetState wires the ledger to the persistence layer.
func (l *Ledger) SetState(state engineState) { l.state = state }

// SetTokens wires the subsidy token used by Fund and Release.
func (l *Ledger) SetTokens(tokens TokenMover) { l.tokens = tokens }

// Owner returns the ledger owner.
func (l *Ledger) Owner() common.Address { return l.owner }

// Treasury returns the address holding reserve-backed tokens.
func (l *Ledger) Treasury() common.Address { return l.treasury }

// IsOwner reports whether addr is the ledger owner.
func (l *Ledger) IsOwner(addr common.Address) bool {
	return l != nil && addr == l.owner
}

// Balances returns a copy of both counters.
func (l *Ledger) Balances() (*types.ReserveLedger, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.Reserves()
}

// ProtocolReserves returns the protocol reserves counter.
func (l *Ledger) ProtocolReserves() (*big.Int, error) {
	ledger, err := l.Balances()
	if err != nil {
		return nil, err
	}
	return ledger.ProtocolReserves, nil
}

// Credit adds amount to the protocol reserves. The caller is responsible for
// having moved the tokens to the treasury.
func (l *Ledger) Credit(amount *big.Int, reason string) error {
	return l.update(amount, reason, func(ledger *types.ReserveLedger) error {
		ledger.ProtocolReserves.Add(ledger.ProtocolReserves, amount)
		return nil
	})
}

// Debit removes amount from the protocol reserves, failing rather than
// clamping when the reserves are short.
func (l *Ledger) Debit(amount *big.Int, reason string) error {
	return l.update(amount, reason, func(ledger *types.ReserveLedger) error {
		if ledger.ProtocolReserves.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientReserves, ledger.ProtocolReserves, amount)
		}
		ledger.ProtocolReserves.Sub(ledger.ProtocolReserves, amount)
		return nil
	})
}

// CreditEmission books freshly minted tokens. Both counters are credited with
// the full amount; they are independent claims over one balance.
func (l *Ledger) CreditEmission(amount *big.Int) error {
	return l.update(amount, ReasonEmission, func(ledger *types.ReserveLedger) error {
		ledger.ProtocolReserves.Add(ledger.ProtocolReserves, amount)
		ledger.EmissionReserve.Add(ledger.EmissionReserve, amount)
		return nil
	})
}

// Fund moves amount of subsidy tokens from funder into the treasury and
// credits the protocol reserves. Only the ledger owner may fund.
func (l *Ledger) Fund(caller, funder common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !l.IsOwner(caller) {
		return ErrNotOwner
	}
	if l.tokens == nil {
		return fmt.Errorf("reserve ledger: token not configured: %w", farmerrors.ErrInvalidState)
	}
	return l.state.Atomic(func() error {
		if err := l.tokens.Transfer(funder, l.treasury, amount); err != nil {
			return err
		}
		return l.Credit(amount, ReasonFunded)
	})
}

// Release pays amount out of the protocol reserves to recipient. Only the
// ledger owner may release.
func (l *Ledger) Release(caller, recipient common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !l.IsOwner(caller) {
		return ErrNotOwner
	}
	if l.tokens == nil {
		return fmt.Errorf("reserve ledger: token not configured: %w", farmerrors.ErrInvalidState)
	}
	return l.state.Atomic(func() error {
		if err := l.Debit(amount, ReasonReleased); err != nil {
			return err
		}
		return l.tokens.Transfer(l.treasury, recipient, amount)
	})
}

func (l *Ledger) update(amount *big.Int, reason string, apply func(*types.ReserveLedger) error) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.state.Atomic(func() error {
		ledger, err := l.state.Reserves()
		if err != nil {
			return err
		}
		if err := apply(ledger); err != nil {
			return err
		}
		if err := l.state.PutReserves(ledger); err != nil {
			return err
		}
		l.state.Emit(events.ReservesChanged{
			ProtocolReserves: new(big.Int).Set(ledger.ProtocolReserves),
			EmissionReserve:  new(big.Int).Set(ledger.EmissionReserve),
			Reason:           strings.TrimSpace(reason),
		})
		l.state.OnCommit(func() { l.metrics.SetReserves(ledger.ProtocolReserves, ledger.EmissionReserve) })
		return nil
	})
}
