package emission

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/types"
	nativecommon "yieldcore/native/common"
	"yieldcore/observability/metrics"
)

const moduleName = "emission"

var (
	errNilState = fmt.Errorf("emission scheduler: state not configured: %w", farmerrors.ErrInvalidState)

	// ErrTooSoon is returned while the minimum emission interval has not
	// elapsed since the last emission.
	ErrTooSoon         = farmerrors.New(farmerrors.ErrInvalidState, "emission: too soon")
	ErrNotInitialised  = farmerrors.New(farmerrors.ErrInvalidState, "emission: scheduler not initialised")
	ErrClockRegression = farmerrors.New(farmerrors.ErrInvalidState, "emission: clock before last emission")
)

type engineState interface {
	EmissionState() (*types.EmissionState, bool, error)
	PutEmissionState(st *types.EmissionState) error
	Atomic(fn func() error) error
	OnCommit(fn func())
	Emit(events.Event)
}

// Minter issues new subsidy tokens.
type Minter interface {
	Mint(to common.Address, amount *big.Int) error
}

// ReserveBook records minted tokens against the reserve counters.
type ReserveBook interface {
	CreditEmission(amount *big.Int) error
}

// Scheduler mints the subsidy token on a throttled halving schedule.
type Scheduler struct {
	state    engineState
	minter   Minter
	reserves ReserveBook
	treasury common.Address
	params   Params
	pauses   nativecommon.PauseView
	nowFn    func() time.Time
	metrics  *metrics.FarmingMetrics
}

// NewScheduler validates params and constructs a scheduler minting into
// treasury.
func NewScheduler(params Params, treasury common.Address) (*Scheduler, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		treasury: treasury,
		params:   params,
		nowFn:    time.Now,
		metrics:  metrics.Farming(),
	}, nil
}

// SetState wires the scheduler to the persistence layer.
func (s *Scheduler) SetState(state engineState) { s.state = state }

// SetMinter wires the token the scheduler mints.
func (s *Scheduler) SetMinter(minter Minter) { s.minter = minter }

// SetReserves wires the ledger credited after each emission.
func (s *Scheduler) SetReserves(reserves ReserveBook) { s.reserves = reserves }

// SetPauses wires the pause view consulted before emitting.
func (s *Scheduler) SetPauses(p nativecommon.PauseView) { s.pauses = p }

// SetNowFunc overrides the scheduler clock.
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	if now == nil {
		s.nowFn = time.Now
		return
	}
	s.nowFn = now
}

// Params returns the configured schedule.
func (s *Scheduler) Params() Params { return s.params }

// Initialize stores the genesis state if none exists yet. Both the last
// emission and last halving times start at genesis.
func (s *Scheduler) Initialize(genesis time.Time) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	return s.state.Atomic(func() error {
		_, ok, err := s.state.EmissionState()
		if err != nil || ok {
			return err
		}
		ts := uint64(genesis.Unix())
		return s.state.PutEmissionState(&types.EmissionState{
			TotalEmitted:        big.NewInt(0),
			EmissionPerInterval: new(big.Int).Set(s.params.InitialRate),
			LastHalvingTime:     ts,
			LastEmissionTime:    ts,
		})
	})
}

// State returns a copy of the persisted scheduler progress.
func (s *Scheduler) State() (*types.EmissionState, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	st, ok, err := s.state.EmissionState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialised
	}
	return st.Clone(), nil
}

// Emit mints every whole nominal interval elapsed since the last emission,
// clamped to the emission supply. At most one halving step is applied per
// call. Nothing due returns zero without error.
func (s *Scheduler) Emit() (*big.Int, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return nil, err
	}
	if s.minter == nil || s.reserves == nil {
		return nil, fmt.Errorf("emission scheduler: token or reserves not configured: %w", farmerrors.ErrInvalidState)
	}
	now := uint64(s.nowFn().Unix())
	minted := big.NewInt(0)
	halved := false
	err := s.state.Atomic(func() error {
		st, ok, err := s.state.EmissionState()
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotInitialised
		}
		if now < st.LastEmissionTime {
			return ErrClockRegression
		}
		if now < st.LastEmissionTime+seconds(s.params.MinEmissionInterval) {
			return ErrTooSoon
		}
		if now >= st.LastHalvingTime+seconds(s.params.HalvingInterval) {
			previous := new(big.Int).Set(st.EmissionPerInterval)
			st.EmissionPerInterval.Rsh(st.EmissionPerInterval, 1)
			st.LastHalvingTime = now
			s.state.Emit(events.HalvingOccurred{PreviousRate: previous, NewRate: new(big.Int).Set(st.EmissionPerInterval), Timestamp: now})
			s.state.OnCommit(s.metrics.IncHalving)
			halved = true
		}
		intervals := (now - st.LastEmissionTime) / seconds(s.params.NominalInterval)
		amount := new(big.Int).Mul(new(big.Int).SetUint64(intervals), st.EmissionPerInterval)
		remaining := new(big.Int).Sub(s.params.EmissionSupply, st.TotalEmitted)
		if remaining.Sign() < 0 {
			remaining.SetInt64(0)
		}
		if amount.Cmp(remaining) > 0 {
			amount.Set(remaining)
		}
		if amount.Sign() == 0 {
			if halved {
				return s.state.PutEmissionState(st)
			}
			return nil
		}
		if err := s.minter.Mint(s.treasury, amount); err != nil {
			return err
		}
		st.TotalEmitted.Add(st.TotalEmitted, amount)
		st.LastEmissionTime = now
		if err := s.state.PutEmissionState(st); err != nil {
			return err
		}
		if err := s.reserves.CreditEmission(amount); err != nil {
			return err
		}
		s.state.Emit(events.EmissionMinted{
			Amount:       new(big.Int).Set(amount),
			TotalEmitted: new(big.Int).Set(st.TotalEmitted),
			Intervals:    intervals,
			Timestamp:    now,
		})
		minted = amount
		s.state.OnCommit(func() { s.metrics.AddEmitted(amount) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

func seconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}
