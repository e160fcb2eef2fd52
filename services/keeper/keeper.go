// Package keeper drives the periodic maintenance calls of the farming core:
// emission minting, cooldown recycling and strategy revenue pulls.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"

	farmerrors "yieldcore/core/errors"
	"yieldcore/native/emission"
	"yieldcore/native/farm"
	"yieldcore/observability/metrics"
)

const (
	JobEmit    = "emit"
	JobRecycle = "recycle"
	JobHarvest = "harvest"
)

type Minter interface {
	Emit() (*big.Int, error)
}

type Recycler interface {
	RecycleMatured() (*big.Int, error)
}

type Harvester interface {
	Farms() ([]common.Address, error)
	PullRevenue(ctx context.Context, farm common.Address) (*farm.RevenueReceipt, error)
}

// Config holds one cron spec per job. An empty spec disables the job.
type Config struct {
	EmitSchedule    string
	RecycleSchedule string
	HarvestSchedule string
	// JobTimeout bounds each run; zero means 25s.
	JobTimeout time.Duration
}

// Keeper schedules the jobs on a cron runner. Every job takes the shared lock
// so it never overlaps other writers of the same state manager.
type Keeper struct {
	cfg       Config
	lock      sync.Locker
	logger    *slog.Logger
	metrics   *metrics.FarmingMetrics
	minter    Minter
	recycler  Recycler
	harvester Harvester
	cron      *cron.Cron
	baseCtx   context.Context
	cancel    context.CancelFunc
}

// New constructs a keeper. lock must be the same locker every other writer
// of the state manager holds.
func New(cfg Config, lock sync.Locker, logger *slog.Logger) *Keeper {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 25 * time.Second
	}
	if lock == nil {
		lock = &sync.Mutex{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{cfg: cfg, lock: lock, logger: logger, metrics: metrics.Farming()}
}

func (k *Keeper) SetMinter(m Minter) { k.minter = m }

func (k *Keeper) SetRecycler(r Recycler) { k.recycler = r }

func (k *Keeper) SetHarvester(h Harvester) { k.harvester = h }

// Start registers the configured jobs and starts the scheduler.
func (k *Keeper) Start(ctx context.Context) error {
	if k.cron != nil {
		return fmt.Errorf("keeper: already started")
	}
	clog := cronLogger{k.logger}
	runner := cron.New(cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))
	k.baseCtx, k.cancel = context.WithCancel(ctx)

	jobs := []struct {
		name    string
		spec    string
		enabled bool
		run     func(context.Context) error
	}{
		{JobEmit, k.cfg.EmitSchedule, k.minter != nil, k.RunEmit},
		{JobRecycle, k.cfg.RecycleSchedule, k.recycler != nil, k.RunRecycle},
		{JobHarvest, k.cfg.HarvestSchedule, k.harvester != nil, k.RunHarvest},
	}
	for _, job := range jobs {
		if job.spec == "" || !job.enabled {
			continue
		}
		run := job.run
		name := job.name
		if _, err := runner.AddFunc(job.spec, func() {
			rctx, cancel := context.WithTimeout(k.baseCtx, k.cfg.JobTimeout)
			defer cancel()
			if err := run(rctx); err != nil {
				k.logger.Error("keeper: job failed", "job", name, "error", err)
			}
		}); err != nil {
			k.cancel()
			return fmt.Errorf("keeper: schedule %s %q: %w", name, job.spec, err)
		}
		k.logger.Info("keeper: job scheduled", "job", name, "schedule", job.spec)
	}
	k.cron = runner
	runner.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish or ctx to
// expire.
func (k *Keeper) Stop(ctx context.Context) error {
	if k.cron == nil {
		return nil
	}
	done := k.cron.Stop().Done()
	k.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunEmit mints whatever emission is due. A call inside the throttle window
// is not an error.
func (k *Keeper) RunEmit(context.Context) (err error) {
	if k.minter == nil {
		return nil
	}
	defer k.observe(JobEmit, time.Now(), &err)
	k.lock.Lock()
	defer k.lock.Unlock()
	minted, err := k.minter.Emit()
	if errors.Is(err, emission.ErrTooSoon) {
		k.logger.Debug("keeper: emission throttled")
		return nil
	}
	if err != nil {
		return err
	}
	if minted.Sign() > 0 {
		k.logger.Info("keeper: emission minted", "amount", minted.String())
	}
	return nil
}

// RunRecycle returns matured cooldown entries to the token.
func (k *Keeper) RunRecycle(context.Context) (err error) {
	if k.recycler == nil {
		return nil
	}
	defer k.observe(JobRecycle, time.Now(), &err)
	k.lock.Lock()
	defer k.lock.Unlock()
	recycled, err := k.recycler.RecycleMatured()
	if err != nil {
		return err
	}
	if recycled.Sign() > 0 {
		k.logger.Info("keeper: cooldown recycled", "amount", recycled.String())
	}
	return nil
}

// RunHarvest pulls revenue for every farm. A failing farm is logged and the
// remaining farms are still harvested; the joined error is returned.
func (k *Keeper) RunHarvest(ctx context.Context) (err error) {
	if k.harvester == nil {
		return nil
	}
	defer k.observe(JobHarvest, time.Now(), &err)
	k.lock.Lock()
	farms, err := k.harvester.Farms()
	k.lock.Unlock()
	if err != nil {
		return err
	}
	var errs []error
	for _, addr := range farms {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		k.lock.Lock()
		receipt, err := k.harvester.PullRevenue(ctx, addr)
		k.lock.Unlock()
		if err != nil {
			k.logger.Warn("keeper: revenue pull failed",
				"farm", addr.Hex(),
				"kind", farmerrors.KindName(err),
				"error", err)
			errs = append(errs, fmt.Errorf("farm %s: %w", addr.Hex(), err))
			continue
		}
		if receipt != nil && receipt.Harvested.Sign() > 0 {
			k.logger.Info("keeper: revenue pulled",
				"farm", addr.Hex(),
				"harvested", receipt.Harvested.String(),
				"net", receipt.Net.String())
		}
	}
	return errors.Join(errs...)
}

func (k *Keeper) observe(job string, start time.Time, errp *error) {
	k.metrics.ObserveOperation("keeper."+job, time.Since(start), farmerrors.KindName(*errp))
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
