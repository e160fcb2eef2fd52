package farm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	farmerrors "yieldcore/core/errors"
	"yieldcore/native/revenue"
)

// RevenueReceipt itemises one revenue pull.
type RevenueReceipt struct {
	Harvested *big.Int
	Converted *big.Int
	RouteID   string
	LPShare   *big.Int
	// LPShareStranded is set when the farm had no liquidity to credit.
	LPShareStranded bool
	Net             *big.Int
	Split           *revenue.Split
}

// PullRevenue harvests the farm's strategy, converts the yield into the
// subsidy token at the distributor, credits the LP share to the farm's
// accumulator and distributes the remainder. Nothing harvested is a no-op.
func (e *Engine) PullRevenue(ctx context.Context, farm common.Address) (receipt *RevenueReceipt, err error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ctx, span := e.tracer.Start(ctx, "farm.pull_revenue", trace.WithAttributes(
		attribute.String("farm", farm.Hex()),
	))
	defer span.End()
	defer e.observe("pull_revenue", time.Now(), span, &err)

	release, err := e.enter(farm)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.router == nil || e.revenue == nil || e.tokens == nil {
		return nil, fmt.Errorf("farm engine: router, distributor or token not configured: %w", farmerrors.ErrInvalidState)
	}

	receipt = &RevenueReceipt{
		Harvested: big.NewInt(0),
		Converted: big.NewInt(0),
		LPShare:   big.NewInt(0),
		Net:       big.NewInt(0),
	}
	err = e.state.Atomic(func() error {
		entry, err := e.Lookup(farm)
		if err != nil {
			return err
		}
		strategy, err := e.strategyFor(entry)
		if err != nil {
			return err
		}
		harvested, err := strategy.Harvest(ctx)
		if err != nil {
			return fmt.Errorf("%w: harvest: %v", ErrStrategy, err)
		}
		if harvested == nil || harvested.Sign() <= 0 {
			return nil
		}
		receipt.Harvested = new(big.Int).Set(harvested)

		quoted, route, err := e.router.BestSwapOut(ctx, entry.AssetID, e.cfg.SubsidySymbol, harvested)
		if err != nil {
			return fmt.Errorf("%w: quote: %v", ErrRouter, err)
		}
		if quoted == nil || quoted.Sign() <= 0 {
			return fmt.Errorf("%w: %s -> %s", ErrNoRoute, entry.AssetID, e.cfg.SubsidySymbol)
		}
		converted, err := e.router.Swap(ctx, entry.AssetID, e.cfg.SubsidySymbol, harvested, e.revenue.Address())
		if err != nil {
			return fmt.Errorf("%w: swap: %v", ErrRouter, err)
		}
		if converted == nil {
			converted = big.NewInt(0)
		}
		receipt.RouteID = route
		receipt.Converted = new(big.Int).Set(converted)

		stats, err := e.state.FarmStats(farm)
		if err != nil {
			return err
		}
		stats.TotalHarvested.Add(stats.TotalHarvested, harvested)
		stats.TotalConverted.Add(stats.TotalConverted, converted)
		stats.LastHarvest = e.now()
		if err := e.state.PutFarmStats(farm, stats); err != nil {
			return err
		}
		if converted.Sign() == 0 {
			return nil
		}

		lpShare := percentOf(converted, e.cfg.LPYieldSharePct)
		if lpShare.Sign() > 0 {
			if err := e.tokens.Transfer(e.revenue.Address(), farm, lpShare); err != nil {
				return err
			}
			advanced, err := e.yield.InjectYield(farm, lpShare)
			if err != nil {
				return err
			}
			receipt.LPShare = lpShare
			receipt.LPShareStranded = !advanced
		}
		net := new(big.Int).Sub(converted, lpShare)
		receipt.Net = net
		if net.Sign() == 0 {
			return nil
		}
		split, err := e.revenue.Distribute(farm, net)
		if err != nil {
			return err
		}
		receipt.Split = split
		return nil
	})
	if err != nil {
		return nil, err
	}
	if receipt.Harvested.Sign() > 0 {
		span.SetAttributes(
			attribute.String("harvested", receipt.Harvested.String()),
			attribute.String("converted", receipt.Converted.String()),
			attribute.String("route", receipt.RouteID),
		)
	}
	return receipt, nil
}
