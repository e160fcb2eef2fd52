package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yieldcore/core/types"
)

var (
	positionPrefix    = []byte("farm/position/")
	yieldDebtPrefix   = []byte("farm/debt/")
	accPerSharePrefix = []byte("farm/acc/")
	liquidityPrefix   = []byte("farm/liquidity/")
	bonusPrefix       = []byte("farm/bonus/")
	farmPrefix        = []byte("farm/entry/")
	farmStatsPrefix   = []byte("farm/stats/")
	ownerFeesPrefix   = []byte("farm/fees/")
	benchmarkPrefix   = []byte("farm/benchmark/")
	verifierPrefix    = []byte("farm/verifiers/")
	yodaPrefix        = []byte("farm/yodas/")
	farmListKey       = []byte("farm/list")
	cooldownKey       = []byte("cooldown/entries")
	reservesKey       = []byte("reserves/ledger")
	emissionKey       = []byte("emission/state")
)

func farmKey(prefix []byte, farm common.Address) []byte {
	key := make([]byte, len(prefix)+common.AddressLength)
	copy(key, prefix)
	copy(key[len(prefix):], farm.Bytes())
	return key
}

func pairKey(prefix []byte, farm, provider common.Address) []byte {
	key := make([]byte, len(prefix)+2*common.AddressLength)
	copy(key, prefix)
	copy(key[len(prefix):], farm.Bytes())
	copy(key[len(prefix)+common.AddressLength:], provider.Bytes())
	return key
}

func (m *Manager) getBig(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func (m *Manager) putBig(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	return m.KVPut(key, value)
}

// Position returns the provider's position. Missing positions are returned
// zeroed so callers can treat first deposits uniformly.
func (m *Manager) Position(farm, provider common.Address) (*types.Position, error) {
	pos := new(types.Position)
	ok, err := m.KVGet(pairKey(positionPrefix, farm, provider), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		pos = &types.Position{Farm: farm, Provider: provider}
	}
	pos.EnsureDefaults()
	return pos, nil
}

// PutPosition persists the position.
func (m *Manager) PutPosition(pos *types.Position) error {
	if pos == nil {
		return nil
	}
	pos.EnsureDefaults()
	return m.KVPut(pairKey(positionPrefix, pos.Farm, pos.Provider), pos)
}

// YieldDebt returns the provider's last settled accumulator share.
func (m *Manager) YieldDebt(farm, provider common.Address) (*big.Int, error) {
	return m.getBig(pairKey(yieldDebtPrefix, farm, provider))
}

// PutYieldDebt stores the provider's settled accumulator share.
func (m *Manager) PutYieldDebt(farm, provider common.Address, debt *big.Int) error {
	return m.putBig(pairKey(yieldDebtPrefix, farm, provider), debt)
}

// AccYieldPerShare returns the farm's scaled accumulator.
func (m *Manager) AccYieldPerShare(farm common.Address) (*big.Int, error) {
	return m.getBig(farmKey(accPerSharePrefix, farm))
}

// PutAccYieldPerShare stores the farm's scaled accumulator.
func (m *Manager) PutAccYieldPerShare(farm common.Address, acc *big.Int) error {
	return m.putBig(farmKey(accPerSharePrefix, farm), acc)
}

// TotalLiquidity returns the sum of principal across the farm's positions.
func (m *Manager) TotalLiquidity(farm common.Address) (*big.Int, error) {
	return m.getBig(farmKey(liquidityPrefix, farm))
}

// PutTotalLiquidity stores the farm's aggregate principal.
func (m *Manager) PutTotalLiquidity(farm common.Address, total *big.Int) error {
	return m.putBig(farmKey(liquidityPrefix, farm), total)
}

// BonusRecord returns the provider's bonus record, if any.
func (m *Manager) BonusRecord(farm, provider common.Address) (*types.BonusRecord, bool, error) {
	record := new(types.BonusRecord)
	ok, err := m.KVGet(pairKey(bonusPrefix, farm, provider), record)
	if err != nil || !ok {
		return nil, false, err
	}
	if record.BonusPaid == nil {
		record.BonusPaid = big.NewInt(0)
	}
	return record, true, nil
}

// PutBonusRecord overwrites the provider's bonus record.
func (m *Manager) PutBonusRecord(farm, provider common.Address, record *types.BonusRecord) error {
	if record == nil {
		return m.KVDelete(pairKey(bonusPrefix, farm, provider))
	}
	return m.KVPut(pairKey(bonusPrefix, farm, provider), record)
}

// Farm returns the registry entry for farm.
func (m *Manager) Farm(farm common.Address) (*types.FarmEntry, bool, error) {
	entry := new(types.FarmEntry)
	ok, err := m.KVGet(farmKey(farmPrefix, farm), entry)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry, true, nil
}

// PutFarm stores the registry entry and indexes new farms.
func (m *Manager) PutFarm(entry *types.FarmEntry) error {
	if entry == nil {
		return nil
	}
	_, exists, err := m.Farm(entry.Farm)
	if err != nil {
		return err
	}
	if err := m.KVPut(farmKey(farmPrefix, entry.Farm), entry); err != nil {
		return err
	}
	if exists {
		return nil
	}
	list, err := m.FarmList()
	if err != nil {
		return err
	}
	return m.KVPut(farmListKey, append(list, entry.Farm))
}

// FarmList returns every registered farm in creation order.
func (m *Manager) FarmList() ([]common.Address, error) {
	var list []common.Address
	if _, err := m.KVGet(farmListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// FarmStats returns the farm's harvest and slash counters.
func (m *Manager) FarmStats(farm common.Address) (*types.FarmStats, error) {
	stats := new(types.FarmStats)
	if _, err := m.KVGet(farmKey(farmStatsPrefix, farm), stats); err != nil {
		return nil, err
	}
	stats.EnsureDefaults()
	return stats, nil
}

// PutFarmStats stores the farm's counters.
func (m *Manager) PutFarmStats(farm common.Address, stats *types.FarmStats) error {
	if stats == nil {
		return nil
	}
	stats.EnsureDefaults()
	return m.KVPut(farmKey(farmStatsPrefix, farm), stats)
}

// OwnerFees returns the slash fees owed to the farm owner.
func (m *Manager) OwnerFees(farm common.Address) (*big.Int, error) {
	return m.getBig(farmKey(ownerFeesPrefix, farm))
}

// PutOwnerFees stores the farm owner's fee balance.
func (m *Manager) PutOwnerFees(farm common.Address, amount *big.Int) error {
	return m.putBig(farmKey(ownerFeesPrefix, farm), amount)
}

// Benchmark returns the latest benchmark pushed for farm.
func (m *Manager) Benchmark(farm common.Address) (*types.Benchmark, bool, error) {
	bench := new(types.Benchmark)
	ok, err := m.KVGet(farmKey(benchmarkPrefix, farm), bench)
	if err != nil || !ok {
		return nil, false, err
	}
	return bench, true, nil
}

// PutBenchmark stores the benchmark for farm.
func (m *Manager) PutBenchmark(farm common.Address, bench *types.Benchmark) error {
	if bench == nil {
		return nil
	}
	return m.KVPut(farmKey(benchmarkPrefix, farm), bench)
}

// Verifiers returns the verifier list registered for farm.
func (m *Manager) Verifiers(farm common.Address) ([]common.Address, error) {
	return m.addressList(farmKey(verifierPrefix, farm))
}

// PutVerifiers replaces the verifier list for farm.
func (m *Manager) PutVerifiers(farm common.Address, list []common.Address) error {
	return m.KVPut(farmKey(verifierPrefix, farm), list)
}

// Yodas returns the yield-yoda list registered for farm.
func (m *Manager) Yodas(farm common.Address) ([]common.Address, error) {
	return m.addressList(farmKey(yodaPrefix, farm))
}

// PutYodas replaces the yield-yoda list for farm.
func (m *Manager) PutYodas(farm common.Address, list []common.Address) error {
	return m.KVPut(farmKey(yodaPrefix, farm), list)
}

func (m *Manager) addressList(key []byte) ([]common.Address, error) {
	var list []common.Address
	if _, err := m.KVGet(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CooldownEntries returns the unordered cooldown collection.
func (m *Manager) CooldownEntries() ([]types.CooldownRecord, error) {
	var entries []types.CooldownRecord
	if _, err := m.KVGet(cooldownKey, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// PutCooldownEntries replaces the cooldown collection.
func (m *Manager) PutCooldownEntries(entries []types.CooldownRecord) error {
	if len(entries) == 0 {
		return m.KVDelete(cooldownKey)
	}
	return m.KVPut(cooldownKey, entries)
}

// Reserves returns the reserve ledger counters.
func (m *Manager) Reserves() (*types.ReserveLedger, error) {
	ledger := new(types.ReserveLedger)
	if _, err := m.KVGet(reservesKey, ledger); err != nil {
		return nil, err
	}
	return ledger.Clone(), nil
}

// PutReserves stores the reserve ledger counters.
func (m *Manager) PutReserves(ledger *types.ReserveLedger) error {
	return m.KVPut(reservesKey, ledger.Clone())
}

// EmissionState returns the scheduler progress, if initialised.
func (m *Manager) EmissionState() (*types.EmissionState, bool, error) {
	st := new(types.EmissionState)
	ok, err := m.KVGet(emissionKey, st)
	if err != nil || !ok {
		return nil, false, err
	}
	if st.TotalEmitted == nil {
		st.TotalEmitted = big.NewInt(0)
	}
	if st.EmissionPerInterval == nil {
		st.EmissionPerInterval = big.NewInt(0)
	}
	return st, true, nil
}

// PutEmissionState stores the scheduler progress.
func (m *Manager) PutEmissionState(st *types.EmissionState) error {
	if st == nil {
		return nil
	}
	return m.KVPut(emissionKey, st)
}
