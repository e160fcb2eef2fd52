package bonus

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/types"
	nativecommon "yieldcore/native/common"
	"yieldcore/native/reserve"
)

const moduleName = "bonus"

var (
	errNilState = fmt.Errorf("bonus engine: state not configured: %w", farmerrors.ErrInvalidState)

	ErrInvalidPrincipal = farmerrors.New(farmerrors.ErrInvalidInput, "bonus: principal must be positive")
	ErrZeroBonus        = farmerrors.New(farmerrors.ErrInvalidInput, "bonus: computed bonus is zero")
	ErrUnknownFarm      = farmerrors.New(farmerrors.ErrInvalidInput, "bonus: farm not registered")
	ErrUnauthorized     = farmerrors.New(farmerrors.ErrUnauthorized, "bonus: caller is not the registered farm")
	ErrNotConsensus     = farmerrors.New(farmerrors.ErrUnauthorized, "bonus: caller is not the consensus oracle")
	// ErrNoPinnedBonus is returned by Unpin and ReverseBonus once the record
	// has left the pinned state.
	ErrNoPinnedBonus  = farmerrors.New(farmerrors.ErrInvalidState, "bonus: no pinned bonus")
	ErrStaleRound     = farmerrors.New(farmerrors.ErrInvalidState, "bonus: benchmark round not newer than current")
	ErrTransferFailed = farmerrors.New(farmerrors.ErrExternalCall, "bonus: token transfer failed")
	ErrOracle         = farmerrors.New(farmerrors.ErrExternalCall, "bonus: price oracle failed")
)

type engineState interface {
	Position(farm, provider common.Address) (*types.Position, error)
	PutPosition(pos *types.Position) error
	BonusRecord(farm, provider common.Address) (*types.BonusRecord, bool, error)
	PutBonusRecord(farm, provider common.Address, record *types.BonusRecord) error
	Farm(farm common.Address) (*types.FarmEntry, bool, error)
	Benchmark(farm common.Address) (*types.Benchmark, bool, error)
	PutBenchmark(farm common.Address, bench *types.Benchmark) error
	Atomic(fn func() error) error
	Emit(events.Event)
}

// PriceSource quotes the deposit asset in subsidy tokens.
type PriceSource interface {
	TWAP(ctx context.Context, base, quote string, window time.Duration) (*big.Int, error)
}

// ReserveBook is debited for every issued bonus.
type ReserveBook interface {
	Debit(amount *big.Int, reason string) error
}

// TokenMover moves subsidy tokens for issuance and clawback.
type TokenMover interface {
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
}

// CooldownQueue receives reversed bonuses.
type CooldownQueue interface {
	Vault() common.Address
	Enqueue(amount *big.Int) (*types.CooldownRecord, error)
}

// Config carries the bonus engine's addresses and ratios.
type Config struct {
	// Address is the engine's own identity; providers approve it so
	// reversals can pull bonuses back.
	Address         common.Address
	Treasury        common.Address
	RootFarm        common.Address
	ConsensusCaller common.Address
	SubsidySymbol   string
	RatioPct        uint64
	// DefaultBenchmarkPct applies until the consensus oracle pushes a
	// benchmark for the farm.
	DefaultBenchmarkPct uint64
	TWAPWindow          time.Duration
}

// Engine issues, reverses and unpins deposit bonuses and stores the
// benchmark yield pushed by the consensus oracle.
type Engine struct {
	state    engineState
	cfg      Config
	oracle   PriceSource
	reserves ReserveBook
	tokens   TokenMover
	cooldown CooldownQueue
	pauses   nativecommon.PauseView
	guard    nativecommon.ReentrancyGuard
	nowFn    func() time.Time
}

// NewEngine constructs a bonus engine.
func NewEngine(cfg Config) *Engine {
	cfg.SubsidySymbol = strings.ToUpper(strings.TrimSpace(cfg.SubsidySymbol))
	return &Engine{cfg: cfg, nowFn: time.Now}
}

func (e *Engine) SetState(state engineState) { e.state = state }
func (e *Engine) SetOracle(oracle PriceSource) { e.oracle = oracle }
func (e *Engine) SetReserves(reserves ReserveBook) { e.reserves = reserves }
func (e *Engine) SetTokens(tokens TokenMover) { e.tokens = tokens }
func (e *Engine) SetCooldown(queue CooldownQueue) { e.cooldown = queue }
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }
func (e *Engine) Config() Config { return e.cfg }

// SetNowFunc overrides the engine clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// Record returns the provider's bonus record, if any.
func (e *Engine) Record(farm, provider common.Address) (*types.BonusRecord, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.BonusRecord(farm, provider)
}

// BenchmarkPct returns the yield percentage used for farm's bonuses.
func (e *Engine) BenchmarkPct(farm common.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	bench, ok, err := e.state.Benchmark(farm)
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.cfg.DefaultBenchmarkPct, nil
	}
	return bench.YieldPct, nil
}

// Quote computes the bonus a deposit would receive without issuing it.
func (e *Engine) Quote(ctx context.Context, farm common.Address, principal *big.Int, maturity uint64) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	entry, ok, err := e.state.Farm(farm)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrUnknownFarm
	}
	benchmark, err := e.BenchmarkPct(farm)
	if err != nil {
		return nil, nil, err
	}
	price, err := e.price(ctx, entry.AssetID)
	if err != nil {
		return nil, nil, err
	}
	return ComputeBonus(principal, benchmark, maturity, price, e.cfg.RatioPct), price, nil
}

// IssueBonus pays the provider an up-front bonus out of the protocol
// reserves and pins it. Any earlier record for the position is overwritten.
func (e *Engine) IssueBonus(ctx context.Context, caller, farm, provider common.Address, principal *big.Int, maturity uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.guard.Enter("bonus.issue")
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if principal == nil || principal.Sign() <= 0 {
		return nil, ErrInvalidPrincipal
	}
	var issued *big.Int
	err = e.state.Atomic(func() error {
		if err := e.authorize(caller, farm); err != nil {
			return err
		}
		amount, price, err := e.Quote(ctx, farm, principal, maturity)
		if err != nil {
			return err
		}
		if amount.Sign() <= 0 {
			return ErrZeroBonus
		}
		if err := e.reserves.Debit(amount, reserve.ReasonBonusIssued); err != nil {
			return err
		}
		if err := e.tokens.Transfer(e.cfg.Treasury, provider, amount); err != nil {
			return err
		}
		now := uint64(e.nowFn().Unix())
		record := &types.BonusRecord{BonusPaid: new(big.Int).Set(amount), Pinned: true, DepositTime: now}
		if err := e.state.PutBonusRecord(farm, provider, record); err != nil {
			return err
		}
		pos, err := e.state.Position(farm, provider)
		if err != nil {
			return err
		}
		pos.BonusRetained.Add(pos.BonusRetained, amount)
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		e.state.Emit(events.BonusIssued{Farm: farm, Provider: provider, Amount: new(big.Int).Set(amount), Price: price, DepositTime: now})
		issued = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// ReverseBonus claws the pinned bonus back from the provider into the
// cooldown vault and queues it for recycling. The provider must have
// approved the engine address for the bonus amount.
func (e *Engine) ReverseBonus(caller, farm, provider common.Address, early bool) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.guard.Enter("bonus.reverse")
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.ready(); err != nil {
		return nil, err
	}
	var reversed *big.Int
	err = e.state.Atomic(func() error {
		if err := e.authorize(caller, farm); err != nil {
			return err
		}
		record, err := e.pinned(farm, provider)
		if err != nil {
			return err
		}
		amount := new(big.Int).Set(record.BonusPaid)
		if amount.Sign() > 0 {
			if err := e.tokens.TransferFrom(e.cfg.Address, provider, e.cooldown.Vault(), amount); err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}
			if _, err := e.cooldown.Enqueue(amount); err != nil {
				return err
			}
		}
		record.BonusPaid = big.NewInt(0)
		record.Pinned = false
		if err := e.state.PutBonusRecord(farm, provider, record); err != nil {
			return err
		}
		pos, err := e.state.Position(farm, provider)
		if err != nil {
			return err
		}
		pos.BonusRetained.Sub(pos.BonusRetained, amount)
		if pos.BonusRetained.Sign() < 0 {
			pos.BonusRetained.SetInt64(0)
		}
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		e.state.Emit(events.BonusReversed{Farm: farm, Provider: provider, Amount: new(big.Int).Set(amount), Early: early})
		reversed = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversed, nil
}

// Unpin releases the pinned bonus to the provider for good. No tokens move.
func (e *Engine) Unpin(caller, farm, provider common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.authorize(caller, farm); err != nil {
			return err
		}
		record, err := e.pinned(farm, provider)
		if err != nil {
			return err
		}
		record.Pinned = false
		if err := e.state.PutBonusRecord(farm, provider, record); err != nil {
			return err
		}
		e.state.Emit(events.BonusUnpinned{Farm: farm, Provider: provider, Amount: new(big.Int).Set(record.BonusPaid)})
		return nil
	})
}

// PushBenchmark records the benchmark yield agreed by verifier consensus.
// Only the designated consensus caller may push, and round identifiers must
// strictly increase per farm.
func (e *Engine) PushBenchmark(caller, farm common.Address, roundID, score, yieldPct uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.cfg.ConsensusCaller || caller == (common.Address{}) {
		return ErrNotConsensus
	}
	return e.state.Atomic(func() error {
		if _, ok, err := e.state.Farm(farm); err != nil {
			return err
		} else if !ok {
			return ErrUnknownFarm
		}
		current, ok, err := e.state.Benchmark(farm)
		if err != nil {
			return err
		}
		if ok && roundID <= current.RoundID {
			return fmt.Errorf("%w: round %d, current %d", ErrStaleRound, roundID, current.RoundID)
		}
		bench := &types.Benchmark{RoundID: roundID, Score: score, YieldPct: yieldPct, UpdatedAt: uint64(e.nowFn().Unix())}
		if err := e.state.PutBenchmark(farm, bench); err != nil {
			return err
		}
		e.state.Emit(events.BenchmarkUpdated{Farm: farm, RoundID: roundID, Score: score, YieldPct: yieldPct})
		return nil
	})
}

func (e *Engine) ready() error {
	if e.reserves == nil || e.tokens == nil || e.cooldown == nil {
		return fmt.Errorf("bonus engine: collaborators not configured: %w", farmerrors.ErrInvalidState)
	}
	return nil
}

// authorize admits the farm that owns the record, or the root farm.
func (e *Engine) authorize(caller, farm common.Address) error {
	if caller == (common.Address{}) {
		return ErrUnauthorized
	}
	if caller == e.cfg.RootFarm {
		return nil
	}
	if caller != farm {
		return ErrUnauthorized
	}
	_, ok, err := e.state.Farm(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) pinned(farm, provider common.Address) (*types.BonusRecord, error) {
	record, ok, err := e.state.BonusRecord(farm, provider)
	if err != nil {
		return nil, err
	}
	if !ok || !record.Pinned {
		return nil, ErrNoPinnedBonus
	}
	return record, nil
}

func (e *Engine) price(ctx context.Context, assetID string) (*big.Int, error) {
	if e.oracle == nil {
		return big.NewInt(0), nil
	}
	price, err := e.oracle.TWAP(ctx, assetID, e.cfg.SubsidySymbol, e.cfg.TWAPWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracle, err)
	}
	if price == nil {
		return big.NewInt(0), nil
	}
	return price, nil
}
