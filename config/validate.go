package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
)

func (cfg *Config) normalize() {
	cfg.ServiceName = strings.TrimSpace(cfg.ServiceName)
	if cfg.ServiceName == "" {
		cfg.ServiceName = "yieldd"
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.Token.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Token.Symbol))
	cfg.Token.MaxSupply = strings.TrimSpace(cfg.Token.MaxSupply)
	cfg.Emission.ParamsFile = strings.TrimSpace(cfg.Emission.ParamsFile)
	cfg.Keeper.EmitSchedule = strings.TrimSpace(cfg.Keeper.EmitSchedule)
	cfg.Keeper.RecycleSchedule = strings.TrimSpace(cfg.Keeper.RecycleSchedule)
	cfg.Keeper.HarvestSchedule = strings.TrimSpace(cfg.Keeper.HarvestSchedule)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.HTTP.ListenAddress = strings.TrimSpace(cfg.HTTP.ListenAddress)
	cfg.Addresses.normalize()
}

func (a *Addresses) normalize() {
	fill := func(field *string, label string) {
		*field = strings.TrimSpace(*field)
		if *field == "" {
			*field = ModuleAddress(label).Hex()
		}
	}
	fill(&a.Admin, "admin")
	fill(&a.Treasury, "treasury")
	fill(&a.RootFarm, "root-farm")
	fill(&a.Token, "token")
	fill(&a.CooldownVault, "cooldown-vault")
	fill(&a.Distributor, "distributor")
	fill(&a.Bonus, "bonus")
	fill(&a.ConsensusCaller, "consensus")
	a.LedgerOwner = strings.TrimSpace(a.LedgerOwner)
	if a.LedgerOwner == "" {
		a.LedgerOwner = a.Admin
	}
}

func (cfg *Config) validate() error {
	if cfg.Token.Symbol == "" {
		return fmt.Errorf("token: symbol required")
	}
	if _, err := cfg.TokenMaxSupply(); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if _, err := cfg.ResolvedAddresses(); err != nil {
		return fmt.Errorf("addresses: %w", err)
	}
	if cfg.Bonus.RatioPct > 100 {
		return fmt.Errorf("bonus: ratio_pct must not exceed 100")
	}
	for name, pct := range map[string]uint64{
		"protocol_fee_pct":   cfg.Revenue.ProtocolFeePct,
		"reserve_ratio_pct":  cfg.Revenue.ReserveRatioPct,
		"lp_yield_share_pct": cfg.Revenue.LPYieldSharePct,
	} {
		if pct > 100 {
			return fmt.Errorf("revenue: %s must not exceed 100", name)
		}
	}
	if cfg.Withdraw.SlashFeePct > 100 {
		return fmt.Errorf("withdraw: slash_fee_pct must not exceed 100")
	}
	if cfg.Withdraw.MaxLockSeconds > 0 && cfg.Withdraw.MaxLockSeconds < cfg.Withdraw.MinLockSeconds {
		return fmt.Errorf("withdraw: max_lock_seconds below min_lock_seconds")
	}
	if cfg.Cooldown.PeriodSeconds == 0 {
		return fmt.Errorf("cooldown: period_seconds must be positive")
	}
	if cfg.Emission.ParamsFile == "" {
		if _, err := cfg.EmissionParams(); err != nil {
			return err
		}
	}
	if cfg.Keeper.Enabled {
		for name, spec := range map[string]string{
			"emit_schedule":    cfg.Keeper.EmitSchedule,
			"recycle_schedule": cfg.Keeper.RecycleSchedule,
			"harvest_schedule": cfg.Keeper.HarvestSchedule,
		} {
			if spec == "" {
				continue
			}
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("keeper: %s: %w", name, err)
			}
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	if cfg.HTTP.ListenAddress == "" {
		return fmt.Errorf("http: listen address required")
	}
	if cfg.HTTP.RequestsPerMinute < 0 || cfg.HTTP.Burst < 0 {
		return fmt.Errorf("http: rate limit must not be negative")
	}
	return nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}
