package token

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/types"
)

var (
	errNilState = fmt.Errorf("token engine: state not configured: %w", farmerrors.ErrInvalidState)

	ErrInvalidAmount         = farmerrors.New(farmerrors.ErrInvalidInput, "token: amount must be positive")
	ErrZeroAddress           = farmerrors.New(farmerrors.ErrInvalidInput, "token: zero address")
	ErrAmountOverflow        = farmerrors.New(farmerrors.ErrInvalidInput, "token: amount exceeds 256 bits")
	ErrInsufficientBalance   = farmerrors.New(farmerrors.ErrInsufficientFunds, "token: insufficient balance")
	ErrInsufficientAllowance = farmerrors.New(farmerrors.ErrInsufficientFunds, "token: insufficient allowance")
	ErrSupplyCapExceeded     = farmerrors.New(farmerrors.ErrInvalidState, "token: max supply exceeded")
)

type engineState interface {
	TokenSupply(symbol string) (*types.TokenSupply, error)
	SetTokenSupply(symbol string, supply *types.TokenSupply) error
	TokenBalance(symbol string, holder common.Address) (*big.Int, error)
	SetTokenBalance(symbol string, holder common.Address, amount *big.Int) error
	TokenAllowance(symbol string, owner, spender common.Address) (*big.Int, error)
	SetTokenAllowance(symbol string, owner, spender common.Address, amount *big.Int) error
	Atomic(fn func() error) error
	Emit(events.Event)
}

// Engine is the ledger of the capped subsidy token. The token's own address
// holds the unissued bucket: tokens recycled out of circulation are parked
// there rather than destroyed.
type Engine struct {
	state   engineState
	symbol  string
	address common.Address
}

// NewEngine constructs a token ledger for symbol whose unissued bucket lives
// at address.
func NewEngine(symbol string, address common.Address) *Engine {
	return &Engine{
		symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		address: address,
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// Symbol returns the normalised token symbol.
func (e *Engine) Symbol() string { return e.symbol }

// Address returns the token's own address.
func (e *Engine) Address() common.Address { return e.address }

// Configure sets the hard cap on total supply. Lowering the cap below the
// already issued supply is rejected.
func (e *Engine) Configure(maxSupply *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if maxSupply == nil || maxSupply.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := checkWidth(maxSupply); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		supply, err := e.state.TokenSupply(e.symbol)
		if err != nil {
			return err
		}
		if supply.Total.Cmp(maxSupply) > 0 {
			return ErrSupplyCapExceeded
		}
		supply.MaxSupply = new(big.Int).Set(maxSupply)
		return e.state.SetTokenSupply(e.symbol, supply)
	})
}

// TotalSupply returns the issued supply, which includes the unissued bucket
// only for tokens that were minted and later recycled.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	supply, err := e.state.TokenSupply(e.symbol)
	if err != nil {
		return nil, err
	}
	return supply.Total, nil
}

// MaxSupply returns the configured cap; zero means uncapped.
func (e *Engine) MaxSupply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	supply, err := e.state.TokenSupply(e.symbol)
	if err != nil {
		return nil, err
	}
	return supply.MaxSupply, nil
}

// BalanceOf returns holder's balance.
func (e *Engine) BalanceOf(holder common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.TokenBalance(e.symbol, holder)
}

// Allowance returns how much spender may move on behalf of owner.
func (e *Engine) Allowance(owner, spender common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.TokenAllowance(e.symbol, owner, spender)
}

// Unissued returns the balance parked at the token's own address.
func (e *Engine) Unissued() (*big.Int, error) {
	return e.BalanceOf(e.address)
}

// Mint issues new tokens to recipient, enforcing the supply cap.
func (e *Engine) Mint(to common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	return e.state.Atomic(func() error {
		supply, err := e.state.TokenSupply(e.symbol)
		if err != nil {
			return err
		}
		total := new(big.Int).Add(supply.Total, amount)
		if supply.MaxSupply.Sign() > 0 && total.Cmp(supply.MaxSupply) > 0 {
			return ErrSupplyCapExceeded
		}
		if err := checkWidth(total); err != nil {
			return err
		}
		if err := e.credit(to, amount); err != nil {
			return err
		}
		supply.Total = total
		if err := e.state.SetTokenSupply(e.symbol, supply); err != nil {
			return err
		}
		return e.emitSupply(total, amount, events.SupplyReasonMint)
	})
}

// Burn destroys amount from holder's balance.
func (e *Engine) Burn(from common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.debit(from, amount); err != nil {
			return err
		}
		supply, err := e.state.TokenSupply(e.symbol)
		if err != nil {
			return err
		}
		total := new(big.Int).Sub(supply.Total, amount)
		if total.Sign() < 0 {
			return fmt.Errorf("token %s supply underflow: %w", e.symbol, farmerrors.ErrInvalidState)
		}
		supply.Total = total
		if err := e.state.SetTokenSupply(e.symbol, supply); err != nil {
			return err
		}
		return e.emitSupply(total, new(big.Int).Neg(amount), events.SupplyReasonBurn)
	})
}

// Transfer moves amount from sender to recipient.
func (e *Engine) Transfer(from, to common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	return e.state.Atomic(func() error {
		return e.move(from, to, amount)
	})
}

// Approve sets the allowance spender may draw from owner.
func (e *Engine) Approve(owner, spender common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := checkWidth(amount); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	return e.state.Atomic(func() error {
		return e.state.SetTokenAllowance(e.symbol, owner, spender, amount)
	})
}

// TransferFrom moves amount from owner to recipient using spender's
// allowance.
func (e *Engine) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	return e.state.Atomic(func() error {
		allowance, err := e.state.TokenAllowance(e.symbol, from, spender)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := e.move(from, to, amount); err != nil {
			return err
		}
		return e.state.SetTokenAllowance(e.symbol, from, spender, new(big.Int).Sub(allowance, amount))
	})
}

// Recycle burns amount from holder and re-mints it into the unissued bucket
// at the token's own address. Total supply is unchanged.
func (e *Engine) Recycle(from common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.move(from, e.address, amount); err != nil {
			return err
		}
		supply, err := e.state.TokenSupply(e.symbol)
		if err != nil {
			return err
		}
		return e.emitSupply(supply.Total, big.NewInt(0), events.SupplyReasonRecycle)
	})
}

func (e *Engine) move(from, to common.Address, amount *big.Int) error {
	if err := e.debit(from, amount); err != nil {
		return err
	}
	return e.credit(to, amount)
}

func (e *Engine) debit(holder common.Address, amount *big.Int) error {
	balance, err := e.state.TokenBalance(e.symbol, holder)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, holder.Hex(), balance, amount)
	}
	return e.state.SetTokenBalance(e.symbol, holder, new(big.Int).Sub(balance, amount))
}

func (e *Engine) credit(holder common.Address, amount *big.Int) error {
	balance, err := e.state.TokenBalance(e.symbol, holder)
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(balance, amount)
	if err := checkWidth(updated); err != nil {
		return err
	}
	return e.state.SetTokenBalance(e.symbol, holder, updated)
}

func (e *Engine) emitSupply(total, delta *big.Int, reason string) error {
	unissued, err := e.state.TokenBalance(e.symbol, e.address)
	if err != nil {
		return err
	}
	e.state.Emit(events.TokenSupply{
		Token:    e.symbol,
		Total:    new(big.Int).Set(total),
		Delta:    delta,
		Unissued: unissued,
		Reason:   reason,
	})
	return nil
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return checkWidth(amount)
}

func checkWidth(amount *big.Int) error {
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrAmountOverflow
	}
	return nil
}
