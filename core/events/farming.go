package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"yieldcore/core/types"
)

const (
	TypeFarmCreated        = "farm.created"
	TypeFarmOwnerChanged   = "farm.owner_changed"
	TypeOwnerFeesCollected = "farm.fees_collected"
	TypePositionDeposited  = "position.deposited"
	TypePositionWithdrawn  = "position.withdrawn"
	TypeBonusIssued        = "bonus.issued"
	TypeBonusReversed      = "bonus.reversed"
	TypeBonusUnpinned      = "bonus.unpinned"
	TypeBonusDeferred      = "bonus.deferred"
	TypeRevenueDistributed = "revenue.distributed"
	TypeEmissionMinted     = "emission.minted"
	TypeHalvingOccurred    = "emission.halving"
	TypeCooldownQueued     = "cooldown.queued"
	TypeCooldownRecycled   = "cooldown.recycled"
	TypeYieldInjected      = "yield.injected"
	TypeYieldStranded      = "yield.stranded"
	TypeYieldClaimed       = "yield.claimed"
	TypeBenchmarkUpdated   = "benchmark.updated"
	TypeReservesChanged    = "reserves.changed"
)

type FarmCreated struct {
	Farm          common.Address
	Owner         common.Address
	AssetID       string
	VerifierSplit uint64
	YodaSplit     uint64
}

func (FarmCreated) EventType() string { return TypeFarmCreated }

func (e FarmCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmCreated,
		Attributes: map[string]string{
			"farm":          e.Farm.Hex(),
			"owner":         e.Owner.Hex(),
			"assetId":       strings.TrimSpace(e.AssetID),
			"verifierSplit": uintString(e.VerifierSplit),
			"yodaSplit":     uintString(e.YodaSplit),
		},
	}
}

type FarmOwnerChanged struct {
	Farm     common.Address
	Previous common.Address
	Owner    common.Address
}

func (FarmOwnerChanged) EventType() string { return TypeFarmOwnerChanged }

func (e FarmOwnerChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmOwnerChanged,
		Attributes: map[string]string{
			"farm":     e.Farm.Hex(),
			"previous": e.Previous.Hex(),
			"owner":    e.Owner.Hex(),
		},
	}
}

// OwnerFeesCollected records the owner settling accrued slash fees.
type OwnerFeesCollected struct {
	Farm   common.Address
	Owner  common.Address
	Amount *big.Int
}

func (OwnerFeesCollected) EventType() string { return TypeOwnerFeesCollected }

func (e OwnerFeesCollected) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerFeesCollected,
		Attributes: map[string]string{
			"farm":   e.Farm.Hex(),
			"owner":  e.Owner.Hex(),
			"amount": bigString(e.Amount),
		},
	}
}

type PositionDeposited struct {
	Farm             common.Address
	Provider         common.Address
	Amount           *big.Int
	Principal        *big.Int
	WeightedMaturity uint64
}

func (PositionDeposited) EventType() string { return TypePositionDeposited }

func (e PositionDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypePositionDeposited,
		Attributes: map[string]string{
			"farm":             e.Farm.Hex(),
			"provider":         e.Provider.Hex(),
			"amount":           bigString(e.Amount),
			"principal":        bigString(e.Principal),
			"weightedMaturity": uintString(e.WeightedMaturity),
		},
	}
}

type PositionWithdrawn struct {
	Farm      common.Address
	Provider  common.Address
	Amount    *big.Int
	SlashFee  *big.Int
	Principal *big.Int
	Early     bool
}

func (PositionWithdrawn) EventType() string { return TypePositionWithdrawn }

func (e PositionWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypePositionWithdrawn,
		Attributes: map[string]string{
			"farm":      e.Farm.Hex(),
			"provider":  e.Provider.Hex(),
			"amount":    bigString(e.Amount),
			"slashFee":  bigString(e.SlashFee),
			"principal": bigString(e.Principal),
			"early":     strconv.FormatBool(e.Early),
		},
	}
}

type BonusIssued struct {
	Farm        common.Address
	Provider    common.Address
	Amount      *big.Int
	Price       *big.Int
	DepositTime uint64
}

func (BonusIssued) EventType() string { return TypeBonusIssued }

func (e BonusIssued) Event() *types.Event {
	return &types.Event{
		Type: TypeBonusIssued,
		Attributes: map[string]string{
			"farm":        e.Farm.Hex(),
			"provider":    e.Provider.Hex(),
			"amount":      bigString(e.Amount),
			"price":       bigString(e.Price),
			"depositTime": uintString(e.DepositTime),
		},
	}
}

type BonusReversed struct {
	Farm     common.Address
	Provider common.Address
	Amount   *big.Int
	Early    bool
}

func (BonusReversed) EventType() string { return TypeBonusReversed }

func (e BonusReversed) Event() *types.Event {
	return &types.Event{
		Type: TypeBonusReversed,
		Attributes: map[string]string{
			"farm":     e.Farm.Hex(),
			"provider": e.Provider.Hex(),
			"amount":   bigString(e.Amount),
			"early":    strconv.FormatBool(e.Early),
		},
	}
}

type BonusUnpinned struct {
	Farm     common.Address
	Provider common.Address
	Amount   *big.Int
}

func (BonusUnpinned) EventType() string { return TypeBonusUnpinned }

func (e BonusUnpinned) Event() *types.Event {
	return &types.Event{
		Type: TypeBonusUnpinned,
		Attributes: map[string]string{
			"farm":     e.Farm.Hex(),
			"provider": e.Provider.Hex(),
			"amount":   bigString(e.Amount),
		},
	}
}

// BonusDeferred records a bonus step that failed without aborting the
// enclosing deposit or withdrawal.
type BonusDeferred struct {
	Farm     common.Address
	Provider common.Address
	Stage    string
	Kind     string
	Reason   string
}

func (BonusDeferred) EventType() string { return TypeBonusDeferred }

func (e BonusDeferred) Event() *types.Event {
	return &types.Event{
		Type: TypeBonusDeferred,
		Attributes: map[string]string{
			"farm":     e.Farm.Hex(),
			"provider": e.Provider.Hex(),
			"stage":    strings.TrimSpace(e.Stage),
			"kind":     strings.TrimSpace(e.Kind),
			"reason":   strings.TrimSpace(e.Reason),
		},
	}
}

type RevenueDistributed struct {
	Farm       common.Address
	NetRevenue *big.Int
	Verifiers  *big.Int
	Yodas      *big.Int
	Owner      *big.Int
	Reserve    *big.Int
	Root       *big.Int
	Dust       *big.Int
}

func (RevenueDistributed) EventType() string { return TypeRevenueDistributed }

func (e RevenueDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeRevenueDistributed,
		Attributes: map[string]string{
			"farm":       e.Farm.Hex(),
			"netRevenue": bigString(e.NetRevenue),
			"verifiers":  bigString(e.Verifiers),
			"yodas":      bigString(e.Yodas),
			"owner":      bigString(e.Owner),
			"reserve":    bigString(e.Reserve),
			"root":       bigString(e.Root),
			"dust":       bigString(e.Dust),
		},
	}
}

type EmissionMinted struct {
	Amount       *big.Int
	TotalEmitted *big.Int
	Intervals    uint64
	Timestamp    uint64
}

func (EmissionMinted) EventType() string { return TypeEmissionMinted }

func (e EmissionMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeEmissionMinted,
		Attributes: map[string]string{
			"amount":       bigString(e.Amount),
			"totalEmitted": bigString(e.TotalEmitted),
			"intervals":    uintString(e.Intervals),
			"timestamp":    uintString(e.Timestamp),
		},
	}
}

type HalvingOccurred struct {
	PreviousRate *big.Int
	NewRate      *big.Int
	Timestamp    uint64
}

func (HalvingOccurred) EventType() string { return TypeHalvingOccurred }

func (e HalvingOccurred) Event() *types.Event {
	return &types.Event{
		Type: TypeHalvingOccurred,
		Attributes: map[string]string{
			"previousRate": bigString(e.PreviousRate),
			"newRate":      bigString(e.NewRate),
			"timestamp":    uintString(e.Timestamp),
		},
	}
}

type CooldownQueued struct {
	ID          string
	Amount      *big.Int
	ReleaseTime uint64
}

func (CooldownQueued) EventType() string { return TypeCooldownQueued }

func (e CooldownQueued) Event() *types.Event {
	return &types.Event{
		Type: TypeCooldownQueued,
		Attributes: map[string]string{
			"id":          e.ID,
			"amount":      bigString(e.Amount),
			"releaseTime": uintString(e.ReleaseTime),
		},
	}
}

type CooldownRecycled struct {
	Amount    *big.Int
	Entries   int
	Timestamp uint64
}

func (CooldownRecycled) EventType() string { return TypeCooldownRecycled }

func (e CooldownRecycled) Event() *types.Event {
	return &types.Event{
		Type: TypeCooldownRecycled,
		Attributes: map[string]string{
			"amount":    bigString(e.Amount),
			"entries":   strconv.Itoa(e.Entries),
			"timestamp": uintString(e.Timestamp),
		},
	}
}

type YieldInjected struct {
	Farm        common.Address
	Amount      *big.Int
	AccPerShare *big.Int
}

func (YieldInjected) EventType() string { return TypeYieldInjected }

func (e YieldInjected) Event() *types.Event {
	return &types.Event{
		Type: TypeYieldInjected,
		Attributes: map[string]string{
			"farm":        e.Farm.Hex(),
			"amount":      bigString(e.Amount),
			"accPerShare": bigString(e.AccPerShare),
		},
	}
}

type YieldStranded struct {
	Farm   common.Address
	Amount *big.Int
}

func (YieldStranded) EventType() string { return TypeYieldStranded }

func (e YieldStranded) Event() *types.Event {
	return &types.Event{
		Type: TypeYieldStranded,
		Attributes: map[string]string{
			"farm":   e.Farm.Hex(),
			"amount": bigString(e.Amount),
		},
	}
}

type YieldClaimed struct {
	Farm     common.Address
	Provider common.Address
	Amount   *big.Int
}

func (YieldClaimed) EventType() string { return TypeYieldClaimed }

func (e YieldClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeYieldClaimed,
		Attributes: map[string]string{
			"farm":     e.Farm.Hex(),
			"provider": e.Provider.Hex(),
			"amount":   bigString(e.Amount),
		},
	}
}

type BenchmarkUpdated struct {
	Farm     common.Address
	RoundID  uint64
	Score    uint64
	YieldPct uint64
}

func (BenchmarkUpdated) EventType() string { return TypeBenchmarkUpdated }

func (e BenchmarkUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBenchmarkUpdated,
		Attributes: map[string]string{
			"farm":     e.Farm.Hex(),
			"roundId":  uintString(e.RoundID),
			"score":    uintString(e.Score),
			"yieldPct": uintString(e.YieldPct),
		},
	}
}

// ReservesChanged reports both reserve counters after a mutation.
type ReservesChanged struct {
	ProtocolReserves *big.Int
	EmissionReserve  *big.Int
	Reason           string
}

func (ReservesChanged) EventType() string { return TypeReservesChanged }

func (e ReservesChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeReservesChanged,
		Attributes: map[string]string{
			"protocolReserves": bigString(e.ProtocolReserves),
			"emissionReserve":  bigString(e.EmissionReserve),
			"reason":           strings.TrimSpace(e.Reason),
		},
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
