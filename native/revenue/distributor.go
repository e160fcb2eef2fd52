package revenue

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/types"
	"yieldcore/native/reserve"
	"yieldcore/observability/metrics"
)

var (
	errNilState = fmt.Errorf("revenue distributor: state not configured: %w", farmerrors.ErrInvalidState)

	ErrInvalidAmount     = farmerrors.New(farmerrors.ErrInvalidInput, "revenue: amount must be positive")
	ErrUnknownFarm       = farmerrors.New(farmerrors.ErrInvalidInput, "revenue: farm not registered")
	ErrZeroAddress       = farmerrors.New(farmerrors.ErrInvalidInput, "revenue: zero address")
	ErrInvalidSplits     = farmerrors.New(farmerrors.ErrInvalidInput, "revenue: splits exceed 100%")
	ErrUnauthorized      = farmerrors.New(farmerrors.ErrUnauthorized, "revenue: caller is not the farm owner or ledger owner")
	ErrAlreadyRegistered = farmerrors.New(farmerrors.ErrInvalidState, "revenue: participant already registered")
	ErrNotRegistered     = farmerrors.New(farmerrors.ErrInvalidState, "revenue: participant not registered")
)

var hundred = big.NewInt(100)

type engineState interface {
	Farm(farm common.Address) (*types.FarmEntry, bool, error)
	Verifiers(farm common.Address) ([]common.Address, error)
	PutVerifiers(farm common.Address, list []common.Address) error
	Yodas(farm common.Address) ([]common.Address, error)
	PutYodas(farm common.Address, list []common.Address) error
	Atomic(fn func() error) error
	OnCommit(fn func())
	Emit(events.Event)
}

// TokenMover pays out of the distributor vault.
type TokenMover interface {
	Transfer(from, to common.Address, amount *big.Int) error
}

// ReserveBook is credited with the reserve portion and with shares that have
// no registered recipients.
type ReserveBook interface {
	Credit(amount *big.Int, reason string) error
}

// YieldInjector feeds the root farm's accumulator.
type YieldInjector interface {
	InjectYield(farm common.Address, amount *big.Int) (bool, error)
}

// Config carries the distributor's addresses and fee ratios.
type Config struct {
	// Address holds converted revenue awaiting distribution and keeps the
	// rounding dust.
	Address         common.Address
	Treasury        common.Address
	RootFarm        common.Address
	LedgerOwner     common.Address
	ProtocolFeePct  uint64
	ReserveRatioPct uint64
}

// Split itemises one distribution.
type Split struct {
	Verifiers   *big.Int
	Yodas       *big.Int
	Owner       *big.Int
	Reserve     *big.Int
	Root        *big.Int
	Dust        *big.Int
	PerVerifier *big.Int
	PerYoda     *big.Int
}

// Distributor splits converted farm revenue among the farm's participants,
// its owner, the protocol reserves and the root farm.
type Distributor struct {
	state    engineState
	cfg      Config
	tokens   TokenMover
	reserves ReserveBook
	yield    YieldInjector
	metrics  *metrics.FarmingMetrics
}

// NewDistributor validates cfg and constructs a distributor.
func NewDistributor(cfg Config) (*Distributor, error) {
	if cfg.ProtocolFeePct > 100 || cfg.ReserveRatioPct > 100 {
		return nil, fmt.Errorf("revenue: fee ratios must not exceed 100: %w", farmerrors.ErrInvalidInput)
	}
	return &Distributor{cfg: cfg, metrics: metrics.Farming()}, nil
}

func (d *Distributor) SetState(state engineState) { d.state = state }

func (d *Distributor) SetTokens(tokens TokenMover) { d.tokens = tokens }

func (d *Distributor) SetReserves(reserves ReserveBook) { d.reserves = reserves }

func (d *Distributor) SetYield(yield YieldInjector) { d.yield = yield }

// Address returns the distributor vault.
func (d *Distributor) Address() common.Address { return d.cfg.Address }

// Verifiers returns the farm's registered verifiers.
func (d *Distributor) Verifiers(farm common.Address) ([]common.Address, error) {
	if d == nil || d.state == nil {
		return nil, errNilState
	}
	return d.state.Verifiers(farm)
}

// Yodas returns the farm's registered yield-yodas.
func (d *Distributor) Yodas(farm common.Address) ([]common.Address, error) {
	if d == nil || d.state == nil {
		return nil, errNilState
	}
	return d.state.Yodas(farm)
}

type participantList uint8

const (
	verifierList participantList = iota
	yodaList
)

// RegisterVerifier adds addr to the farm's verifiers. Only the farm owner or
// the ledger owner may change participant lists.
func (d *Distributor) RegisterVerifier(caller, farm, addr common.Address) error {
	return d.mutateList(caller, farm, addr, verifierList, true)
}

func (d *Distributor) RemoveVerifier(caller, farm, addr common.Address) error {
	return d.mutateList(caller, farm, addr, verifierList, false)
}

func (d *Distributor) RegisterYoda(caller, farm, addr common.Address) error {
	return d.mutateList(caller, farm, addr, yodaList, true)
}

func (d *Distributor) RemoveYoda(caller, farm, addr common.Address) error {
	return d.mutateList(caller, farm, addr, yodaList, false)
}

// Distribute pays out netRevenue, which the distributor vault must already
// hold. Integer-division dust stays in the vault.
func (d *Distributor) Distribute(farm common.Address, netRevenue *big.Int) (*Split, error) {
	if d == nil || d.state == nil {
		return nil, errNilState
	}
	if d.tokens == nil || d.reserves == nil || d.yield == nil {
		return nil, fmt.Errorf("revenue distributor: collaborators not configured: %w", farmerrors.ErrInvalidState)
	}
	if netRevenue == nil || netRevenue.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var split *Split
	err := d.state.Atomic(func() error {
		entry, ok, err := d.state.Farm(farm)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownFarm
		}
		if entry.VerifierSplit+entry.YodaSplit > 100 {
			return ErrInvalidSplits
		}
		split = computeSplit(netRevenue, entry, d.cfg.ProtocolFeePct, d.cfg.ReserveRatioPct)

		verifiers, err := d.state.Verifiers(farm)
		if err != nil {
			return err
		}
		per, dust, err := d.payList(verifiers, split.Verifiers)
		if err != nil {
			return err
		}
		split.PerVerifier = per
		verifierDust := dust
		split.Dust.Add(split.Dust, dust)
		d.state.OnCommit(func() { d.metrics.AddDust("verifiers", verifierDust) })

		yodas, err := d.state.Yodas(farm)
		if err != nil {
			return err
		}
		per, dust, err = d.payList(yodas, split.Yodas)
		if err != nil {
			return err
		}
		split.PerYoda = per
		yodaDust := dust
		split.Dust.Add(split.Dust, dust)
		d.state.OnCommit(func() { d.metrics.AddDust("yodas", yodaDust) })

		if err := d.toReserves(split.Reserve, reserve.ReasonRevenue); err != nil {
			return err
		}
		if split.Owner.Sign() > 0 {
			if err := d.tokens.Transfer(d.cfg.Address, entry.Owner, split.Owner); err != nil {
				return err
			}
		}
		if split.Root.Sign() > 0 {
			if err := d.tokens.Transfer(d.cfg.Address, d.cfg.RootFarm, split.Root); err != nil {
				return err
			}
			if _, err := d.yield.InjectYield(d.cfg.RootFarm, split.Root); err != nil {
				return err
			}
		}
		d.state.Emit(events.RevenueDistributed{
			Farm:       farm,
			NetRevenue: new(big.Int).Set(netRevenue),
			Verifiers:  new(big.Int).Set(split.Verifiers),
			Yodas:      new(big.Int).Set(split.Yodas),
			Owner:      new(big.Int).Set(split.Owner),
			Reserve:    new(big.Int).Set(split.Reserve),
			Root:       new(big.Int).Set(split.Root),
			Dust:       new(big.Int).Set(split.Dust),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return split, nil
}

// computeSplit applies the farm's percentages and the protocol fee. Dust
// starts as the remainder of the three percentage splits.
func computeSplit(net *big.Int, entry *types.FarmEntry, feePct, reservePct uint64) *Split {
	verifiers := pct(net, entry.VerifierSplit)
	yodas := pct(net, entry.YodaSplit)
	owner := pct(net, entry.OwnerSplit())

	fee := pct(owner, feePct)
	reservePortion := pct(fee, reservePct)
	root := new(big.Int).Sub(fee, reservePortion)
	finalOwner := new(big.Int).Sub(owner, fee)

	dust := new(big.Int).Set(net)
	dust.Sub(dust, verifiers)
	dust.Sub(dust, yodas)
	dust.Sub(dust, owner)
	return &Split{
		Verifiers:   verifiers,
		Yodas:       yodas,
		Owner:       finalOwner,
		Reserve:     reservePortion,
		Root:        root,
		Dust:        dust,
		PerVerifier: big.NewInt(0),
		PerYoda:     big.NewInt(0),
	}
}

func (d *Distributor) payList(list []common.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	if amount.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	if len(list) == 0 {
		return big.NewInt(0), big.NewInt(0), d.toReserves(amount, reserve.ReasonEmptyList)
	}
	count := big.NewInt(int64(len(list)))
	per, dust := new(big.Int).QuoRem(amount, count, new(big.Int))
	if per.Sign() > 0 {
		for _, recipient := range list {
			if err := d.tokens.Transfer(d.cfg.Address, recipient, per); err != nil {
				return nil, nil, err
			}
		}
	}
	return per, dust, nil
}

func (d *Distributor) toReserves(amount *big.Int, reason string) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := d.tokens.Transfer(d.cfg.Address, d.cfg.Treasury, amount); err != nil {
		return err
	}
	return d.reserves.Credit(amount, reason)
}

func (d *Distributor) mutateList(caller, farm, addr common.Address, which participantList, add bool) error {
	if d == nil || d.state == nil {
		return errNilState
	}
	load, store := d.state.Verifiers, d.state.PutVerifiers
	if which == yodaList {
		load, store = d.state.Yodas, d.state.PutYodas
	}
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	return d.state.Atomic(func() error {
		entry, ok, err := d.state.Farm(farm)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownFarm
		}
		if caller != entry.Owner && caller != d.cfg.LedgerOwner {
			return ErrUnauthorized
		}
		list, err := load(farm)
		if err != nil {
			return err
		}
		idx := -1
		for i, existing := range list {
			if existing == addr {
				idx = i
				break
			}
		}
		if add {
			if idx >= 0 {
				return ErrAlreadyRegistered
			}
			return store(farm, append(list, addr))
		}
		if idx < 0 {
			return ErrNotRegistered
		}
		list = append(list[:idx], list[idx+1:]...)
		return store(farm, list)
	})
}

func pct(amount *big.Int, percent uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(percent))
	return out.Quo(out, hundred)
}
