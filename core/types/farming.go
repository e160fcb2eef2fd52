package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position is the principal a provider holds inside a farm.
type Position struct {
	Farm     common.Address `json:"farm"`
	Provider common.Address `json:"provider"`
	// Principal is denominated in the farm's deposit asset.
	Principal *big.Int `json:"principal"`
	// WeightedMaturity is the deposit-size-weighted average of the lock end
	// times chosen on each deposit.
	WeightedMaturity uint64 `json:"weightedMaturity"`
	// BonusRetained counts subsidy tokens the provider kept from bonuses that
	// were not reversed.
	BonusRetained *big.Int `json:"bonusRetained"`
	LastUpdate    uint64   `json:"lastUpdate"`
}

// BonusRecord tracks the single outstanding deposit bonus of a position.
type BonusRecord struct {
	BonusPaid   *big.Int `json:"bonusPaid"`
	Pinned      bool     `json:"pinned"`
	DepositTime uint64   `json:"depositTime"`
}

// CooldownRecord holds reversed bonus tokens until ReleaseTime.
type CooldownRecord struct {
	ID          string   `json:"id"`
	Amount      *big.Int `json:"amount"`
	ReleaseTime uint64   `json:"releaseTime"`
}

// FarmEntry is the registry record created once per farm.
type FarmEntry struct {
	Farm    common.Address `json:"farm"`
	Owner   common.Address `json:"owner"`
	AssetID string         `json:"assetId"`
	// VerifierSplit and YodaSplit are whole percentages; the owner receives
	// the remainder of 100.
	VerifierSplit uint64 `json:"verifierSplit"`
	YodaSplit     uint64 `json:"yodaSplit"`
	Strategy      string `json:"strategy"`
	CreatedAt     uint64 `json:"createdAt"`
}

// OwnerSplit returns the implicit owner percentage.
func (f *FarmEntry) OwnerSplit() uint64 {
	if f == nil || f.VerifierSplit+f.YodaSplit > 100 {
		return 0
	}
	return 100 - f.VerifierSplit - f.YodaSplit
}

// FarmStats aggregates per-farm counters that are not part of any position.
type FarmStats struct {
	TotalHarvested   *big.Int `json:"totalHarvested"`
	TotalConverted   *big.Int `json:"totalConverted"`
	StrandedYield    *big.Int `json:"strandedYield"`
	SlashedPrincipal *big.Int `json:"slashedPrincipal"`
	LastHarvest      uint64   `json:"lastHarvest"`
}

// ReserveLedger holds the two protocol counters over the subsidy token. They
// are independent and may both claim the same underlying balance.
type ReserveLedger struct {
	ProtocolReserves *big.Int `json:"protocolReserves"`
	EmissionReserve  *big.Int `json:"emissionReserve"`
}

// EmissionState is the persisted progress of the emission scheduler.
type EmissionState struct {
	TotalEmitted        *big.Int `json:"totalEmitted"`
	EmissionPerInterval *big.Int `json:"emissionPerInterval"`
	LastHalvingTime     uint64   `json:"lastHalvingTime"`
	LastEmissionTime    uint64   `json:"lastEmissionTime"`
}

// Benchmark is the externally supplied expected annual yield for a farm.
type Benchmark struct {
	RoundID   uint64 `json:"roundId"`
	Score     uint64 `json:"score"`
	YieldPct  uint64 `json:"yieldPct"`
	UpdatedAt uint64 `json:"updatedAt"`
}

// TokenSupply captures the subsidy token's issued supply and hard cap.
type TokenSupply struct {
	Total     *big.Int `json:"total"`
	MaxSupply *big.Int `json:"maxSupply"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Principal = copyBig(p.Principal)
	clone.BonusRetained = copyBig(p.BonusRetained)
	return &clone
}

// EnsureDefaults replaces nil amounts with zero.
func (p *Position) EnsureDefaults() {
	if p.Principal == nil {
		p.Principal = big.NewInt(0)
	}
	if p.BonusRetained == nil {
		p.BonusRetained = big.NewInt(0)
	}
}

// Clone returns a deep copy of the bonus record.
func (b *BonusRecord) Clone() *BonusRecord {
	if b == nil {
		return nil
	}
	clone := *b
	clone.BonusPaid = copyBig(b.BonusPaid)
	return &clone
}

// Clone returns a deep copy of the cooldown record.
func (c CooldownRecord) Clone() CooldownRecord {
	c.Amount = copyBig(c.Amount)
	return c
}

// Clone returns a deep copy of the ledger.
func (r *ReserveLedger) Clone() *ReserveLedger {
	if r == nil {
		return &ReserveLedger{ProtocolReserves: big.NewInt(0), EmissionReserve: big.NewInt(0)}
	}
	return &ReserveLedger{
		ProtocolReserves: copyBig(r.ProtocolReserves),
		EmissionReserve:  copyBig(r.EmissionReserve),
	}
}

// Clone returns a deep copy of the emission state.
func (s *EmissionState) Clone() *EmissionState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalEmitted = copyBig(s.TotalEmitted)
	clone.EmissionPerInterval = copyBig(s.EmissionPerInterval)
	return &clone
}

// Clone returns a deep copy of the stats.
func (s *FarmStats) Clone() *FarmStats {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalHarvested = copyBig(s.TotalHarvested)
	clone.TotalConverted = copyBig(s.TotalConverted)
	clone.StrandedYield = copyBig(s.StrandedYield)
	clone.SlashedPrincipal = copyBig(s.SlashedPrincipal)
	return &clone
}

// EnsureDefaults replaces nil amounts with zero.
func (s *FarmStats) EnsureDefaults() {
	if s.TotalHarvested == nil {
		s.TotalHarvested = big.NewInt(0)
	}
	if s.TotalConverted == nil {
		s.TotalConverted = big.NewInt(0)
	}
	if s.StrandedYield == nil {
		s.StrandedYield = big.NewInt(0)
	}
	if s.SlashedPrincipal == nil {
		s.SlashedPrincipal = big.NewInt(0)
	}
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
