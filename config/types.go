package config

// Addresses names every account the engines are wired to. Empty values are
// replaced by deterministic module addresses during normalisation.
type Addresses struct {
	Admin           string `toml:"Admin" yaml:"admin"`
	Treasury        string `toml:"Treasury" yaml:"treasury"`
	RootFarm        string `toml:"RootFarm" yaml:"root_farm"`
	Token           string `toml:"Token" yaml:"token"`
	CooldownVault   string `toml:"CooldownVault" yaml:"cooldown_vault"`
	Distributor     string `toml:"Distributor" yaml:"distributor"`
	Bonus           string `toml:"Bonus" yaml:"bonus"`
	ConsensusCaller string `toml:"ConsensusCaller" yaml:"consensus_caller"`
	LedgerOwner     string `toml:"LedgerOwner" yaml:"ledger_owner"`
}

// Token configures the subsidy token.
type Token struct {
	Symbol string `toml:"Symbol" yaml:"symbol"`
	// MaxSupply is a base-unit integer; empty or "0" disables the cap.
	MaxSupply string `toml:"MaxSupply" yaml:"max_supply"`
}

type Bonus struct {
	RatioPct            uint64 `toml:"RatioPct" yaml:"ratio_pct"`
	DefaultBenchmarkPct uint64 `toml:"DefaultBenchmarkPct" yaml:"default_benchmark_pct"`
	TWAPWindowSeconds   uint64 `toml:"TWAPWindowSeconds" yaml:"twap_window_seconds"`
}

// Emission either points at a standalone params file or carries the params
// inline. ParamsFile wins when both are set.
type Emission struct {
	ParamsFile                 string `toml:"ParamsFile" yaml:"params_file"`
	EmissionSupply             string `toml:"EmissionSupply" yaml:"emission_supply"`
	InitialRate                string `toml:"InitialRate" yaml:"initial_rate"`
	NominalIntervalSeconds     uint64 `toml:"NominalIntervalSeconds" yaml:"nominal_interval_seconds"`
	MinEmissionIntervalSeconds uint64 `toml:"MinEmissionIntervalSeconds" yaml:"min_emission_interval_seconds"`
	HalvingIntervalSeconds     uint64 `toml:"HalvingIntervalSeconds" yaml:"halving_interval_seconds"`
}

type Cooldown struct {
	PeriodSeconds uint64 `toml:"PeriodSeconds" yaml:"period_seconds"`
}

type Revenue struct {
	ProtocolFeePct  uint64 `toml:"ProtocolFeePct" yaml:"protocol_fee_pct"`
	ReserveRatioPct uint64 `toml:"ReserveRatioPct" yaml:"reserve_ratio_pct"`
	LPYieldSharePct uint64 `toml:"LPYieldSharePct" yaml:"lp_yield_share_pct"`
}

type Withdraw struct {
	SlashFeePct    uint64 `toml:"SlashFeePct" yaml:"slash_fee_pct"`
	MinLockSeconds uint64 `toml:"MinLockSeconds" yaml:"min_lock_seconds"`
	MaxLockSeconds uint64 `toml:"MaxLockSeconds" yaml:"max_lock_seconds"`
}

// Keeper holds cron specs (standard five-field or @every descriptors) for
// the periodic jobs.
type Keeper struct {
	Enabled         bool   `toml:"Enabled" yaml:"enabled"`
	EmitSchedule    string `toml:"EmitSchedule" yaml:"emit_schedule"`
	RecycleSchedule string `toml:"RecycleSchedule" yaml:"recycle_schedule"`
	HarvestSchedule string `toml:"HarvestSchedule" yaml:"harvest_schedule"`
}

type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
	Compress   bool   `toml:"Compress" yaml:"compress"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}

type HTTP struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen"`
	// RequestsPerMinute throttles each client of the /v1 routes; zero
	// disables the limiter.
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Pauses lists modules that start paused.
type Pauses struct {
	Farm     bool `toml:"Farm" yaml:"farm"`
	Bonus    bool `toml:"Bonus" yaml:"bonus"`
	Emission bool `toml:"Emission" yaml:"emission"`
}
