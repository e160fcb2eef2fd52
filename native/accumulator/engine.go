package accumulator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/types"
	"yieldcore/observability/metrics"
)

// Scale is the fixed-point factor applied to AccYieldPerShare.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var (
	errNilState = fmt.Errorf("yield accumulator: state not configured: %w", farmerrors.ErrInvalidState)

	ErrInvalidAmount = farmerrors.New(farmerrors.ErrInvalidInput, "accumulator: amount must be positive")
	// ErrNoActivePosition is returned when claiming against a zero principal.
	ErrNoActivePosition  = farmerrors.New(farmerrors.ErrInvalidState, "accumulator: no active position")
	ErrNegativePrincipal = farmerrors.New(farmerrors.ErrInvalidInput, "accumulator: principal must not be negative")
)

type engineState interface {
	Position(farm, provider common.Address) (*types.Position, error)
	YieldDebt(farm, provider common.Address) (*big.Int, error)
	PutYieldDebt(farm, provider common.Address, debt *big.Int) error
	AccYieldPerShare(farm common.Address) (*big.Int, error)
	PutAccYieldPerShare(farm common.Address, acc *big.Int) error
	TotalLiquidity(farm common.Address) (*big.Int, error)
	FarmStats(farm common.Address) (*types.FarmStats, error)
	PutFarmStats(farm common.Address, stats *types.FarmStats) error
	Atomic(fn func() error) error
	OnCommit(fn func())
	Emit(events.Event)
}

// TokenMover pays claimed yield out of a farm's vault.
type TokenMover interface {
	Transfer(from, to common.Address, amount *big.Int) error
}

// Engine distributes injected yield across a farm's positions pro rata to
// principal without iterating holders. Each farm's subsidy tokens are held at
// the farm address.
type Engine struct {
	state   engineState
	tokens  TokenMover
	metrics *metrics.FarmingMetrics
}

// NewEngine constructs an accumulator engine.
func NewEngine() *Engine {
	return &Engine{metrics: metrics.Farming()}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the token used to pay out claims.
func (e *Engine) SetTokens(tokens TokenMover) { e.tokens = tokens }

// InjectYield advances the farm's accumulator by amount spread over the
// current liquidity. With no liquidity the amount is stranded: it stays in
// the vault and is not queued for later distribution. The returned flag
// reports whether the accumulator advanced.
func (e *Engine) InjectYield(farm common.Address, amount *big.Int) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	advanced := false
	err := e.state.Atomic(func() error {
		total, err := e.state.TotalLiquidity(farm)
		if err != nil {
			return err
		}
		if total.Sign() == 0 {
			stats, err := e.state.FarmStats(farm)
			if err != nil {
				return err
			}
			stats.StrandedYield.Add(stats.StrandedYield, amount)
			if err := e.state.PutFarmStats(farm, stats); err != nil {
				return err
			}
			e.state.Emit(events.YieldStranded{Farm: farm, Amount: new(big.Int).Set(amount)})
			stranded := new(big.Int).Set(amount)
			e.state.OnCommit(func() { e.metrics.AddStranded(farm.Hex(), stranded) })
			return nil
		}
		acc, err := e.state.AccYieldPerShare(farm)
		if err != nil {
			return err
		}
		delta := new(big.Int).Mul(amount, Scale)
		delta.Quo(delta, total)
		acc.Add(acc, delta)
		if err := e.state.PutAccYieldPerShare(farm, acc); err != nil {
			return err
		}
		e.state.Emit(events.YieldInjected{Farm: farm, Amount: new(big.Int).Set(amount), AccPerShare: new(big.Int).Set(acc)})
		advanced = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return advanced, nil
}

// OnPositionChange resets the provider's debt to newPrincipal's share of the
// accumulator. Pending yield on the previous principal is not settled first.
func (e *Engine) OnPositionChange(farm, provider common.Address, newPrincipal *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if newPrincipal == nil {
		newPrincipal = big.NewInt(0)
	}
	if newPrincipal.Sign() < 0 {
		return ErrNegativePrincipal
	}
	acc, err := e.state.AccYieldPerShare(farm)
	if err != nil {
		return err
	}
	return e.state.PutYieldDebt(farm, provider, accumulated(newPrincipal, acc))
}

// PendingYield returns the provider's unclaimed yield, clamped at zero.
func (e *Engine) PendingYield(farm, provider common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pending, _, err := e.pending(farm, provider)
	return pending, err
}

// Claim pays the provider's pending yield from the farm vault. A zero pending
// amount is not an error.
func (e *Engine) Claim(farm, provider common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.tokens == nil {
		return nil, fmt.Errorf("yield accumulator: token not configured: %w", farmerrors.ErrInvalidState)
	}
	paid := big.NewInt(0)
	err := e.state.Atomic(func() error {
		pos, err := e.state.Position(farm, provider)
		if err != nil {
			return err
		}
		if pos.Principal.Sign() == 0 {
			return ErrNoActivePosition
		}
		pending, owed, err := e.pending(farm, provider)
		if err != nil {
			return err
		}
		if pending.Sign() == 0 {
			return nil
		}
		if err := e.tokens.Transfer(farm, provider, pending); err != nil {
			return err
		}
		if err := e.state.PutYieldDebt(farm, provider, owed); err != nil {
			return err
		}
		e.state.Emit(events.YieldClaimed{Farm: farm, Provider: provider, Amount: new(big.Int).Set(pending)})
		paid = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (e *Engine) pending(farm, provider common.Address) (*big.Int, *big.Int, error) {
	pos, err := e.state.Position(farm, provider)
	if err != nil {
		return nil, nil, err
	}
	acc, err := e.state.AccYieldPerShare(farm)
	if err != nil {
		return nil, nil, err
	}
	debt, err := e.state.YieldDebt(farm, provider)
	if err != nil {
		return nil, nil, err
	}
	owed := accumulated(pos.Principal, acc)
	pending := new(big.Int).Sub(owed, debt)
	if pending.Sign() < 0 {
		pending.SetInt64(0)
	}
	return pending, owed, nil
}

func accumulated(principal, acc *big.Int) *big.Int {
	out := new(big.Int).Mul(principal, acc)
	return out.Quo(out, Scale)
}
