package farm

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/types"
	nativecommon "yieldcore/native/common"
	"yieldcore/observability/metrics"
)

const moduleName = "farm"

var (
	errNilState = fmt.Errorf("farm engine: state not configured: %w", farmerrors.ErrInvalidState)

	ErrInvalidAmount         = farmerrors.New(farmerrors.ErrInvalidInput, "farm: amount must be positive")
	ErrZeroAddress           = farmerrors.New(farmerrors.ErrInvalidInput, "farm: zero address")
	ErrInvalidSplits         = farmerrors.New(farmerrors.ErrInvalidInput, "farm: verifier and yoda splits exceed 100%")
	ErrInvalidLock           = farmerrors.New(farmerrors.ErrInvalidInput, "farm: lock duration out of range")
	ErrUnknownFarm           = farmerrors.New(farmerrors.ErrInvalidInput, "farm: farm not registered")
	ErrUnknownStrategy       = farmerrors.New(farmerrors.ErrInvalidInput, "farm: strategy not registered")
	ErrUnauthorized          = farmerrors.New(farmerrors.ErrUnauthorized, "farm: caller not permitted")
	ErrInsufficientPrincipal = farmerrors.New(farmerrors.ErrInsufficientFunds, "farm: withdrawal exceeds principal")
	ErrFarmExists            = farmerrors.New(farmerrors.ErrInvalidState, "farm: farm already registered")
	ErrNoRoute               = farmerrors.New(farmerrors.ErrExternalCall, "farm: router found no route")
	ErrStrategy              = farmerrors.New(farmerrors.ErrExternalCall, "farm: strategy call failed")
	ErrRouter                = farmerrors.New(farmerrors.ErrExternalCall, "farm: router call failed")
)

type engineState interface {
	Position(farm, provider common.Address) (*types.Position, error)
	PutPosition(pos *types.Position) error
	TotalLiquidity(farm common.Address) (*big.Int, error)
	PutTotalLiquidity(farm common.Address, total *big.Int) error
	AccYieldPerShare(farm common.Address) (*big.Int, error)
	BonusRecord(farm, provider common.Address) (*types.BonusRecord, bool, error)
	Farm(farm common.Address) (*types.FarmEntry, bool, error)
	PutFarm(entry *types.FarmEntry) error
	FarmList() ([]common.Address, error)
	FarmStats(farm common.Address) (*types.FarmStats, error)
	PutFarmStats(farm common.Address, stats *types.FarmStats) error
	OwnerFees(farm common.Address) (*big.Int, error)
	PutOwnerFees(farm common.Address, amount *big.Int) error
	Benchmark(farm common.Address) (*types.Benchmark, bool, error)
	Atomic(fn func() error) error
	Emit(events.Event)
}

// Config tunes the orchestrator.
type Config struct {
	// Admin may create farms and reassign any farm's owner.
	Admin         common.Address
	SubsidySymbol string
	// LPYieldSharePct of converted revenue is injected into the farm's own
	// accumulator; the rest goes to the revenue distributor.
	LPYieldSharePct uint64
	// SlashFeePct of the withdrawn principal is retained on withdrawals
	// before the position's weighted maturity.
	SlashFeePct uint64
	MinLock     time.Duration
	MaxLock     time.Duration
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.LPYieldSharePct > 100 {
		return fmt.Errorf("farm: lpYieldSharePct must not exceed 100: %w", farmerrors.ErrInvalidInput)
	}
	if c.SlashFeePct > 100 {
		return fmt.Errorf("farm: slashFeePct must not exceed 100: %w", farmerrors.ErrInvalidInput)
	}
	if c.MinLock < 0 || (c.MaxLock > 0 && c.MaxLock < c.MinLock) {
		return fmt.Errorf("farm: lock bounds inconsistent: %w", farmerrors.ErrInvalidInput)
	}
	if strings.TrimSpace(c.SubsidySymbol) == "" {
		return fmt.Errorf("farm: subsidy symbol required: %w", farmerrors.ErrInvalidInput)
	}
	return nil
}

// Engine orchestrates deposits, withdrawals, claims and revenue pulls across
// the farming engines. Every entry point runs as one atomic state scope.
type Engine struct {
	state      engineState
	cfg        Config
	yield      YieldBook
	bonus      BonusBook
	revenue    RevenueSplitter
	tokens     TokenMover
	router     Router
	strategies map[string]YieldStrategy
	pauses     nativecommon.PauseView
	guard      nativecommon.ReentrancyGuard
	nowFn      func() time.Time
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics.FarmingMetrics
}

// NewEngine validates cfg and constructs the orchestrator.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.SubsidySymbol = strings.ToUpper(strings.TrimSpace(cfg.SubsidySymbol))
	return &Engine{
		cfg:        cfg,
		strategies: make(map[string]YieldStrategy),
		nowFn:      time.Now,
		logger:     slog.Default(),
		tracer:     otel.Tracer("yieldcore/farm"),
		metrics:    metrics.Farming(),
	}, nil
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetYield(yield YieldBook) { e.yield = yield }

func (e *Engine) SetBonus(bonus BonusBook) { e.bonus = bonus }

func (e *Engine) SetRevenue(splitter RevenueSplitter) { e.revenue = splitter }

func (e *Engine) SetTokens(tokens TokenMover) { e.tokens = tokens }

func (e *Engine) SetRouter(router Router) { e.router = router }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetStrategy registers the adapter farms refer to by name.
func (e *Engine) SetStrategy(name string, strategy YieldStrategy) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if strategy == nil {
		delete(e.strategies, name)
		return
	}
	e.strategies[name] = strategy
}

// SetNowFunc overrides the engine clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// CreateFarm registers a farm. Only the admin may create farms; splits are
// immutable afterwards.
func (e *Engine) CreateFarm(caller common.Address, entry types.FarmEntry) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.cfg.Admin {
		return ErrUnauthorized
	}
	if entry.Farm == (common.Address{}) || entry.Owner == (common.Address{}) {
		return ErrZeroAddress
	}
	if entry.VerifierSplit+entry.YodaSplit > 100 {
		return ErrInvalidSplits
	}
	entry.AssetID = strings.ToUpper(strings.TrimSpace(entry.AssetID))
	if entry.AssetID == "" {
		return fmt.Errorf("farm: asset identifier required: %w", farmerrors.ErrInvalidInput)
	}
	entry.Strategy = strings.TrimSpace(entry.Strategy)
	if _, ok := e.strategies[entry.Strategy]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, entry.Strategy)
	}
	return e.state.Atomic(func() error {
		if _, exists, err := e.state.Farm(entry.Farm); err != nil {
			return err
		} else if exists {
			return ErrFarmExists
		}
		entry.CreatedAt = uint64(e.nowFn().Unix())
		if err := e.state.PutFarm(&entry); err != nil {
			return err
		}
		e.state.Emit(events.FarmCreated{
			Farm:          entry.Farm,
			Owner:         entry.Owner,
			AssetID:       entry.AssetID,
			VerifierSplit: entry.VerifierSplit,
			YodaSplit:     entry.YodaSplit,
		})
		return nil
	})
}

// TransferOwnership reassigns the farm owner. The current owner or the admin
// may transfer.
func (e *Engine) TransferOwnership(caller, farm, newOwner common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	return e.state.Atomic(func() error {
		entry, err := e.Lookup(farm)
		if err != nil {
			return err
		}
		if caller != entry.Owner && caller != e.cfg.Admin {
			return ErrUnauthorized
		}
		previous := entry.Owner
		entry.Owner = newOwner
		if err := e.state.PutFarm(entry); err != nil {
			return err
		}
		e.state.Emit(events.FarmOwnerChanged{Farm: farm, Previous: previous, Owner: newOwner})
		return nil
	})
}

// Lookup implements FarmRegistry.
func (e *Engine) Lookup(farm common.Address) (*types.FarmEntry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	entry, ok, err := e.state.Farm(farm)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownFarm
	}
	return entry, nil
}

// Farms lists registered farms in creation order.
func (e *Engine) Farms() ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.FarmList()
}

// Snapshot is a read-only view of one farm.
type Snapshot struct {
	Entry            *types.FarmEntry `json:"entry"`
	Stats            *types.FarmStats `json:"stats"`
	TotalLiquidity   *big.Int         `json:"totalLiquidity"`
	AccYieldPerShare *big.Int         `json:"accYieldPerShare"`
	OwnerFees        *big.Int         `json:"ownerFees"`
	Benchmark        *types.Benchmark `json:"benchmark,omitempty"`
}

// Snapshot returns the farm's registry entry and aggregates.
func (e *Engine) Snapshot(farm common.Address) (*Snapshot, error) {
	entry, err := e.Lookup(farm)
	if err != nil {
		return nil, err
	}
	stats, err := e.state.FarmStats(farm)
	if err != nil {
		return nil, err
	}
	total, err := e.state.TotalLiquidity(farm)
	if err != nil {
		return nil, err
	}
	acc, err := e.state.AccYieldPerShare(farm)
	if err != nil {
		return nil, err
	}
	fees, err := e.state.OwnerFees(farm)
	if err != nil {
		return nil, err
	}
	bench, _, err := e.state.Benchmark(farm)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Entry: entry, Stats: stats, TotalLiquidity: total, AccYieldPerShare: acc, OwnerFees: fees, Benchmark: bench}, nil
}

// OwnerFees returns the slash fees credited to the farm owner and not yet
// collected.
func (e *Engine) OwnerFees(farm common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.Lookup(farm); err != nil {
		return nil, err
	}
	return e.state.OwnerFees(farm)
}

// CollectFees zeroes the owner's fee balance and returns what was owed. The
// principal itself already left the strategy on withdrawal; settlement in the
// deposit asset happens outside the core.
func (e *Engine) CollectFees(caller, farm common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var collected *big.Int
	err := e.state.Atomic(func() error {
		entry, err := e.Lookup(farm)
		if err != nil {
			return err
		}
		if caller != entry.Owner {
			return ErrUnauthorized
		}
		fees, err := e.state.OwnerFees(farm)
		if err != nil {
			return err
		}
		collected = fees
		if fees.Sign() == 0 {
			return nil
		}
		if err := e.state.PutOwnerFees(farm, big.NewInt(0)); err != nil {
			return err
		}
		e.state.Emit(events.OwnerFeesCollected{Farm: farm, Owner: entry.Owner, Amount: new(big.Int).Set(fees)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collected, nil
}

// Position returns the provider's position in farm.
func (e *Engine) Position(farm, provider common.Address) (*types.Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.Position(farm, provider)
}

func (e *Engine) strategyFor(entry *types.FarmEntry) (YieldStrategy, error) {
	strategy, ok := e.strategies[entry.Strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, entry.Strategy)
	}
	return strategy, nil
}

func (e *Engine) enter(farm common.Address) (func(), error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	return e.guard.Enter("farm:" + farm.Hex())
}

func (e *Engine) ready() error {
	if e.yield == nil || e.bonus == nil {
		return fmt.Errorf("farm engine: accumulator or bonus engine not configured: %w", farmerrors.ErrInvalidState)
	}
	return nil
}

func (e *Engine) now() uint64 { return uint64(e.nowFn().Unix()) }
