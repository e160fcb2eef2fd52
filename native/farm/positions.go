package farm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	nativecommon "yieldcore/native/common"
)

const (
	stageIssue   = "issue"
	stageReverse = "reverse"
	stageUnpin   = "unpin"
)

// DepositReceipt reports the result of a deposit, including the best-effort
// bonus step.
type DepositReceipt struct {
	Principal        *big.Int
	WeightedMaturity uint64
	Bonus            *big.Int
	BonusOutcome     nativecommon.Outcome
}

// WithdrawReceipt reports the result of a withdrawal.
type WithdrawReceipt struct {
	// Withdrawn is the principal paid to the provider, net of SlashFee. The
	// strategy releases the gross amount; SlashFee is credited to the farm
	// owner's fee balance.
	Withdrawn    *big.Int
	SlashFee     *big.Int
	Principal    *big.Int
	Early        bool
	BonusStage   string
	BonusOutcome nativecommon.Outcome
}

// Deposit adds amount to the provider's position, locked for lock. The
// position's maturity becomes the deposit-weighted average of its lock ends.
// The bonus is issued best-effort: its failure does not undo the deposit.
func (e *Engine) Deposit(ctx context.Context, farm, provider common.Address, amount *big.Int, lock time.Duration) (receipt *DepositReceipt, err error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ctx, span := e.tracer.Start(ctx, "farm.deposit", trace.WithAttributes(
		attribute.String("farm", farm.Hex()),
		attribute.String("provider", provider.Hex()),
	))
	defer span.End()
	defer e.observe("deposit", time.Now(), span, &err)

	release, err := e.enter(farm)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if provider == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if lock < e.cfg.MinLock || (e.cfg.MaxLock > 0 && lock > e.cfg.MaxLock) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLock, lock)
	}

	receipt = &DepositReceipt{Bonus: big.NewInt(0)}
	err = e.state.Atomic(func() error {
		entry, err := e.Lookup(farm)
		if err != nil {
			return err
		}
		strategy, err := e.strategyFor(entry)
		if err != nil {
			return err
		}
		pos, err := e.state.Position(farm, provider)
		if err != nil {
			return err
		}
		total, err := e.state.TotalLiquidity(farm)
		if err != nil {
			return err
		}
		now := e.now()
		lockSeconds := uint64(lock / time.Second)
		pos.WeightedMaturity = weightedMaturity(pos.Principal, pos.WeightedMaturity, amount, now+lockSeconds)
		pos.Principal.Add(pos.Principal, amount)
		pos.LastUpdate = now
		total.Add(total, amount)
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		if err := e.state.PutTotalLiquidity(farm, total); err != nil {
			return err
		}
		if err := e.yield.OnPositionChange(farm, provider, pos.Principal); err != nil {
			return err
		}
		if err := strategy.Deploy(ctx, amount); err != nil {
			return fmt.Errorf("%w: deploy: %v", ErrStrategy, err)
		}
		e.state.Emit(events.PositionDeposited{
			Farm:             farm,
			Provider:         provider,
			Amount:           new(big.Int).Set(amount),
			Principal:        new(big.Int).Set(pos.Principal),
			WeightedMaturity: pos.WeightedMaturity,
		})

		outcome := e.bestEffort(farm, provider, stageIssue, func() error {
			issued, err := e.bonus.IssueBonus(ctx, farm, farm, provider, amount, lockSeconds)
			if err == nil {
				receipt.Bonus = issued
			}
			return err
		})
		if outcome.Kind == nativecommon.OutcomeFatal {
			return outcome.Err
		}
		receipt.BonusOutcome = outcome
		receipt.Principal = new(big.Int).Set(pos.Principal)
		receipt.WeightedMaturity = pos.WeightedMaturity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Withdraw releases amount of the provider's principal. Before maturity the
// slash fee is retained and the pinned bonus is reversed; after maturity a
// pinned bonus is unpinned. Both bonus steps are best-effort.
func (e *Engine) Withdraw(ctx context.Context, farm, provider common.Address, amount *big.Int) (receipt *WithdrawReceipt, err error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ctx, span := e.tracer.Start(ctx, "farm.withdraw", trace.WithAttributes(
		attribute.String("farm", farm.Hex()),
		attribute.String("provider", provider.Hex()),
	))
	defer span.End()
	defer e.observe("withdraw", time.Now(), span, &err)

	release, err := e.enter(farm)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	receipt = &WithdrawReceipt{}
	err = e.state.Atomic(func() error {
		entry, err := e.Lookup(farm)
		if err != nil {
			return err
		}
		strategy, err := e.strategyFor(entry)
		if err != nil {
			return err
		}
		pos, err := e.state.Position(farm, provider)
		if err != nil {
			return err
		}
		if pos.Principal.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s, requested %s", ErrInsufficientPrincipal, pos.Principal, amount)
		}
		total, err := e.state.TotalLiquidity(farm)
		if err != nil {
			return err
		}
		now := e.now()
		early := now < pos.WeightedMaturity
		fee := big.NewInt(0)
		if early {
			fee = percentOf(amount, e.cfg.SlashFeePct)
		}
		net := new(big.Int).Sub(amount, fee)

		pos.Principal.Sub(pos.Principal, amount)
		pos.LastUpdate = now
		total.Sub(total, amount)
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		if err := e.state.PutTotalLiquidity(farm, total); err != nil {
			return err
		}
		if err := e.yield.OnPositionChange(farm, provider, pos.Principal); err != nil {
			return err
		}
		if fee.Sign() > 0 {
			stats, err := e.state.FarmStats(farm)
			if err != nil {
				return err
			}
			stats.SlashedPrincipal.Add(stats.SlashedPrincipal, fee)
			if err := e.state.PutFarmStats(farm, stats); err != nil {
				return err
			}
			owed, err := e.state.OwnerFees(farm)
			if err != nil {
				return err
			}
			if err := e.state.PutOwnerFees(farm, owed.Add(owed, fee)); err != nil {
				return err
			}
		}
		if err := strategy.Withdraw(ctx, amount); err != nil {
			return fmt.Errorf("%w: withdraw: %v", ErrStrategy, err)
		}
		e.state.Emit(events.PositionWithdrawn{
			Farm:      farm,
			Provider:  provider,
			Amount:    new(big.Int).Set(net),
			SlashFee:  new(big.Int).Set(fee),
			Principal: new(big.Int).Set(pos.Principal),
			Early:     early,
		})

		record, ok, err := e.state.BonusRecord(farm, provider)
		if err != nil {
			return err
		}
		if ok && record.Pinned {
			stage := stageUnpin
			step := func() error { return e.bonus.Unpin(farm, farm, provider) }
			if early {
				stage = stageReverse
				step = func() error {
					_, err := e.bonus.ReverseBonus(farm, farm, provider, true)
					return err
				}
			}
			outcome := e.bestEffort(farm, provider, stage, step)
			if outcome.Kind == nativecommon.OutcomeFatal {
				return outcome.Err
			}
			receipt.BonusStage = stage
			receipt.BonusOutcome = outcome
		}
		receipt.Withdrawn = net
		receipt.SlashFee = fee
		receipt.Principal = new(big.Int).Set(pos.Principal)
		receipt.Early = early
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Claim pays the provider's pending yield from the farm vault.
func (e *Engine) Claim(ctx context.Context, farm, provider common.Address) (paid *big.Int, err error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	_, span := e.tracer.Start(ctx, "farm.claim", trace.WithAttributes(
		attribute.String("farm", farm.Hex()),
		attribute.String("provider", provider.Hex()),
	))
	defer span.End()
	defer e.observe("claim", time.Now(), span, &err)

	release, err := e.enter(farm)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.Lookup(farm); err != nil {
		return nil, err
	}
	return e.yield.Claim(farm, provider)
}

// PendingYield reports the provider's unclaimed yield.
func (e *Engine) PendingYield(farm, provider common.Address) (*big.Int, error) {
	if e == nil || e.yield == nil {
		return nil, errNilState
	}
	return e.yield.PendingYield(farm, provider)
}

// bestEffort runs step in its own atomic scope. A failing step is reverted
// on its own and classified; recoverable failures are logged and recorded as
// a deferred bonus event in the enclosing scope.
func (e *Engine) bestEffort(farm, provider common.Address, stage string, step func() error) nativecommon.Outcome {
	outcome := nativecommon.Classify(e.state.Atomic(step))
	e.metrics.RecordBonusOutcome(stage, outcome.Kind.String())
	if outcome.Kind != nativecommon.OutcomeRecoverable {
		return outcome
	}
	e.logger.Warn("farm: bonus step deferred",
		"farm", farm.Hex(),
		"provider", provider.Hex(),
		"stage", stage,
		"kind", farmerrors.KindName(outcome.Err),
		"reason", outcome.Reason())
	e.state.Emit(events.BonusDeferred{
		Farm:     farm,
		Provider: provider,
		Stage:    stage,
		Kind:     farmerrors.KindName(outcome.Err),
		Reason:   outcome.Reason(),
	})
	return outcome
}

func (e *Engine) observe(op string, start time.Time, span trace.Span, errp *error) {
	err := *errp
	e.metrics.ObserveOperation(op, time.Since(start), farmerrors.KindName(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, op+" applied")
}

// weightedMaturity averages the existing maturity and the new lock end,
// weighted by principal.
func weightedMaturity(oldPrincipal *big.Int, oldMaturity uint64, amount *big.Int, lockEnd uint64) uint64 {
	if oldPrincipal == nil || oldPrincipal.Sign() == 0 {
		return lockEnd
	}
	weighted := new(big.Int).Mul(oldPrincipal, new(big.Int).SetUint64(oldMaturity))
	weighted.Add(weighted, new(big.Int).Mul(amount, new(big.Int).SetUint64(lockEnd)))
	weighted.Quo(weighted, new(big.Int).Add(oldPrincipal, amount))
	return weighted.Uint64()
}

func percentOf(amount *big.Int, pct uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(pct))
	return out.Quo(out, big.NewInt(100))
}
