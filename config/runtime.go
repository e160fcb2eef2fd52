package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"yieldcore/native/emission"
)

// ModuleAddress derives the deterministic account used for a module when
// the operator does not configure one.
func ModuleAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("yieldcore/" + label))[12:])
}

// ResolvedAddresses holds the parsed account set.
type ResolvedAddresses struct {
	Admin           common.Address
	Treasury        common.Address
	RootFarm        common.Address
	Token           common.Address
	CooldownVault   common.Address
	Distributor     common.Address
	Bonus           common.Address
	ConsensusCaller common.Address
	LedgerOwner     common.Address
}

// ResolvedAddresses parses every configured address.
func (cfg Config) ResolvedAddresses() (ResolvedAddresses, error) {
	var out ResolvedAddresses
	fields := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"admin", cfg.Addresses.Admin, &out.Admin},
		{"treasury", cfg.Addresses.Treasury, &out.Treasury},
		{"root_farm", cfg.Addresses.RootFarm, &out.RootFarm},
		{"token", cfg.Addresses.Token, &out.Token},
		{"cooldown_vault", cfg.Addresses.CooldownVault, &out.CooldownVault},
		{"distributor", cfg.Addresses.Distributor, &out.Distributor},
		{"bonus", cfg.Addresses.Bonus, &out.Bonus},
		{"consensus_caller", cfg.Addresses.ConsensusCaller, &out.ConsensusCaller},
		{"ledger_owner", cfg.Addresses.LedgerOwner, &out.LedgerOwner},
	}
	for _, field := range fields {
		addr, err := parseAddress(field.name, field.raw)
		if err != nil {
			return ResolvedAddresses{}, err
		}
		*field.dst = addr
	}
	return out, nil
}

// TokenMaxSupply parses the subsidy token cap. Zero means uncapped.
func (cfg Config) TokenMaxSupply() (*big.Int, error) {
	if cfg.Token.MaxSupply == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(cfg.Token.MaxSupply, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("max_supply %q invalid", cfg.Token.MaxSupply)
	}
	return amount, nil
}

// EmissionParams resolves the emission schedule: the standalone params file
// when configured, otherwise the inline section over the defaults.
func (cfg Config) EmissionParams() (emission.Params, error) {
	if cfg.Emission.ParamsFile != "" {
		return emission.LoadParams(cfg.Emission.ParamsFile)
	}
	params := emission.DefaultParams()
	if cfg.Emission.EmissionSupply != "" {
		supply, err := emission.ParseAmount("emission_supply", cfg.Emission.EmissionSupply)
		if err != nil {
			return emission.Params{}, err
		}
		params.EmissionSupply = supply
	}
	if cfg.Emission.InitialRate != "" {
		rate, err := emission.ParseAmount("initial_rate", cfg.Emission.InitialRate)
		if err != nil {
			return emission.Params{}, err
		}
		params.InitialRate = rate
	}
	if cfg.Emission.NominalIntervalSeconds > 0 {
		params.NominalInterval = seconds(cfg.Emission.NominalIntervalSeconds)
	}
	if cfg.Emission.MinEmissionIntervalSeconds > 0 {
		params.MinEmissionInterval = seconds(cfg.Emission.MinEmissionIntervalSeconds)
	}
	if cfg.Emission.HalvingIntervalSeconds > 0 {
		params.HalvingInterval = seconds(cfg.Emission.HalvingIntervalSeconds)
	}
	if err := params.Validate(); err != nil {
		return emission.Params{}, err
	}
	return params, nil
}

func (cfg Config) CooldownPeriod() time.Duration { return seconds(cfg.Cooldown.PeriodSeconds) }

func (cfg Config) TWAPWindow() time.Duration { return seconds(cfg.Bonus.TWAPWindowSeconds) }

func (cfg Config) LockBounds() (time.Duration, time.Duration) {
	return seconds(cfg.Withdraw.MinLockSeconds), seconds(cfg.Withdraw.MaxLockSeconds)
}

func seconds(v uint64) time.Duration { return time.Duration(v) * time.Second }
