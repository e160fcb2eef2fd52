package farm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yieldcore/core/types"
	"yieldcore/native/accumulator"
	"yieldcore/native/bonus"
	"yieldcore/native/revenue"
)

// PriceOracle quotes base in quote units scaled by 1e18. A zero price means
// no price is available. The bonus engine consumes it for deposit pricing.
type PriceOracle = bonus.PriceSource

// Router converts harvested principal yield into the subsidy token.
type Router interface {
	BestSwapOut(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, string, error)
	Swap(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int, recipient common.Address) (*big.Int, error)
}

// YieldStrategy deploys a farm's principal into an external protocol.
type YieldStrategy interface {
	Harvest(ctx context.Context) (*big.Int, error)
	Deploy(ctx context.Context, amount *big.Int) error
	Withdraw(ctx context.Context, amount *big.Int) error
}

// FarmRegistry resolves farm metadata.
type FarmRegistry interface {
	Lookup(farm common.Address) (*types.FarmEntry, error)
}

var (
	_ FarmRegistry = (*Engine)(nil)
	_ BonusBook    = (*bonus.Engine)(nil)
	_ YieldBook    = (*accumulator.Engine)(nil)
)

// YieldBook is the accumulator surface the orchestrator drives.
type YieldBook interface {
	InjectYield(farm common.Address, amount *big.Int) (bool, error)
	OnPositionChange(farm, provider common.Address, newPrincipal *big.Int) error
	PendingYield(farm, provider common.Address) (*big.Int, error)
	Claim(farm, provider common.Address) (*big.Int, error)
}

// BonusBook is the bonus surface invoked on deposit and withdrawal.
type BonusBook interface {
	IssueBonus(ctx context.Context, caller, farm, provider common.Address, principal *big.Int, maturity uint64) (*big.Int, error)
	ReverseBonus(caller, farm, provider common.Address, early bool) (*big.Int, error)
	Unpin(caller, farm, provider common.Address) error
}

// RevenueSplitter pays out converted revenue held at its address.
type RevenueSplitter interface {
	Address() common.Address
	Distribute(farm common.Address, netRevenue *big.Int) (*revenue.Split, error)
}

// TokenMover moves subsidy tokens between vaults.
type TokenMover interface {
	Transfer(from, to common.Address, amount *big.Int) error
}
