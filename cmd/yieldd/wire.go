package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"yieldcore/config"
	"yieldcore/core/events"
	"yieldcore/core/state"
	"yieldcore/native/accumulator"
	"yieldcore/native/bonus"
	nativecommon "yieldcore/native/common"
	"yieldcore/native/cooldown"
	"yieldcore/native/emission"
	"yieldcore/native/farm"
	"yieldcore/native/reserve"
	"yieldcore/native/revenue"
	"yieldcore/native/token"
	"yieldcore/services/keeper"
	"yieldcore/storage"
)

// core bundles the wired engines over one state manager.
type core struct {
	db        storage.Database
	state     *state.Manager
	lock      *sync.Mutex
	token     *token.Engine
	reserves  *reserve.Ledger
	yield     *accumulator.Engine
	cooldown  *cooldown.Queue
	bonus     *bonus.Engine
	revenue   *revenue.Distributor
	emission  *emission.Scheduler
	farms     *farm.Engine
	pauses    *nativecommon.Pauses
	keeperCfg keeper.Config
}

// logEmitter forwards committed events to the structured log.
type logEmitter struct{ logger *slog.Logger }

func (e logEmitter) Emit(evt events.Event) {
	rendered := evt.Event()
	if rendered == nil {
		return
	}
	args := make([]any, 0, 2*len(rendered.Attributes)+2)
	args = append(args, "type", rendered.Type)
	for key, value := range rendered.Attributes {
		args = append(args, key, value)
	}
	e.logger.Debug("event", args...)
}

func openDatabase(dataDir string) (storage.Database, error) {
	if dataDir == "" {
		return storage.NewMemDB(), nil
	}
	return storage.NewLevelDB(filepath.Join(dataDir, "state"))
}

func buildCore(cfg *config.Config, logger *slog.Logger, now func() time.Time) (_ *core, err error) {
	addrs, err := cfg.ResolvedAddresses()
	if err != nil {
		return nil, err
	}
	maxSupply, err := cfg.TokenMaxSupply()
	if err != nil {
		return nil, err
	}
	params, err := cfg.EmissionParams()
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	c := &core{db: db, lock: &sync.Mutex{}}
	c.state = state.NewManager(db)
	c.state.SetEmitter(logEmitter{logger: logger})

	c.pauses = nativecommon.NewPauses()
	c.pauses.Set("farm", cfg.Pauses.Farm)
	c.pauses.Set("bonus", cfg.Pauses.Bonus)
	c.pauses.Set("emission", cfg.Pauses.Emission)

	c.token = token.NewEngine(cfg.Token.Symbol, addrs.Token)
	c.token.SetState(c.state)
	if maxSupply.Sign() > 0 {
		if err := c.token.Configure(maxSupply); err != nil {
			return nil, err
		}
	}

	c.reserves = reserve.NewLedger(addrs.LedgerOwner, addrs.Treasury)
	c.reserves.SetState(c.state)
	c.reserves.SetTokens(c.token)

	c.yield = accumulator.NewEngine()
	c.yield.SetState(c.state)
	c.yield.SetTokens(c.token)

	c.cooldown = cooldown.NewQueue(addrs.CooldownVault, cfg.CooldownPeriod())
	c.cooldown.SetState(c.state)
	c.cooldown.SetTokens(c.token)
	c.cooldown.SetNowFunc(now)

	c.bonus = bonus.NewEngine(bonus.Config{
		Address:             addrs.Bonus,
		Treasury:            addrs.Treasury,
		RootFarm:            addrs.RootFarm,
		ConsensusCaller:     addrs.ConsensusCaller,
		SubsidySymbol:       cfg.Token.Symbol,
		RatioPct:            cfg.Bonus.RatioPct,
		DefaultBenchmarkPct: cfg.Bonus.DefaultBenchmarkPct,
		TWAPWindow:          cfg.TWAPWindow(),
	})
	c.bonus.SetState(c.state)
	c.bonus.SetReserves(c.reserves)
	c.bonus.SetTokens(c.token)
	c.bonus.SetCooldown(c.cooldown)
	c.bonus.SetPauses(c.pauses)
	c.bonus.SetNowFunc(now)

	c.revenue, err = revenue.NewDistributor(revenue.Config{
		Address:         addrs.Distributor,
		Treasury:        addrs.Treasury,
		RootFarm:        addrs.RootFarm,
		LedgerOwner:     addrs.LedgerOwner,
		ProtocolFeePct:  cfg.Revenue.ProtocolFeePct,
		ReserveRatioPct: cfg.Revenue.ReserveRatioPct,
	})
	if err != nil {
		return nil, err
	}
	c.revenue.SetState(c.state)
	c.revenue.SetTokens(c.token)
	c.revenue.SetReserves(c.reserves)
	c.revenue.SetYield(c.yield)

	c.emission, err = emission.NewScheduler(params, addrs.Treasury)
	if err != nil {
		return nil, err
	}
	c.emission.SetState(c.state)
	c.emission.SetMinter(c.token)
	c.emission.SetReserves(c.reserves)
	c.emission.SetPauses(c.pauses)
	c.emission.SetNowFunc(now)
	if err := c.emission.Initialize(now()); err != nil {
		return nil, fmt.Errorf("initialise emission: %w", err)
	}

	minLock, maxLock := cfg.LockBounds()
	c.farms, err = farm.NewEngine(farm.Config{
		Admin:           addrs.Admin,
		SubsidySymbol:   cfg.Token.Symbol,
		LPYieldSharePct: cfg.Revenue.LPYieldSharePct,
		SlashFeePct:     cfg.Withdraw.SlashFeePct,
		MinLock:         minLock,
		MaxLock:         maxLock,
	})
	if err != nil {
		return nil, err
	}
	c.farms.SetState(c.state)
	c.farms.SetYield(c.yield)
	c.farms.SetBonus(c.bonus)
	c.farms.SetRevenue(c.revenue)
	c.farms.SetTokens(c.token)
	c.farms.SetPauses(c.pauses)
	c.farms.SetNowFunc(now)
	c.farms.SetLogger(logger)

	if cfg.Keeper.Enabled {
		c.keeperCfg = keeper.Config{
			EmitSchedule:    cfg.Keeper.EmitSchedule,
			RecycleSchedule: cfg.Keeper.RecycleSchedule,
			HarvestSchedule: cfg.Keeper.HarvestSchedule,
		}
	}
	return c, nil
}

func (c *core) newKeeper(logger *slog.Logger) *keeper.Keeper {
	k := keeper.New(c.keeperCfg, c.lock, logger)
	k.SetMinter(c.emission)
	k.SetRecycler(c.cooldown)
	k.SetHarvester(c.farms)
	return k
}

func (c *core) Close() error {
	return c.db.Close()
}
