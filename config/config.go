package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. TOML keys follow the field names; YAML
// keys are snake_case.
type Config struct {
	ServiceName string `toml:"ServiceName" yaml:"service_name"`
	Environment string `toml:"Environment" yaml:"environment"`
	// DataDir holds the leveldb state; empty keeps state in memory.
	DataDir string `toml:"DataDir" yaml:"data_dir"`

	Addresses Addresses `toml:"addresses" yaml:"addresses"`
	Token     Token     `toml:"token" yaml:"token"`
	Bonus     Bonus     `toml:"bonus" yaml:"bonus"`
	Emission  Emission  `toml:"emission" yaml:"emission"`
	Cooldown  Cooldown  `toml:"cooldown" yaml:"cooldown"`
	Revenue   Revenue   `toml:"revenue" yaml:"revenue"`
	Withdraw  Withdraw  `toml:"withdraw" yaml:"withdraw"`
	Keeper    Keeper    `toml:"keeper" yaml:"keeper"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
	HTTP      HTTP      `toml:"http" yaml:"http"`
	Pauses    Pauses    `toml:"pauses" yaml:"pauses"`
}

// Default returns the local development configuration.
func Default() Config {
	return Config{
		ServiceName: "yieldd",
		Environment: "local",
		DataDir:     "./yield-data",
		Token:       Token{Symbol: "YLD"},
		Bonus: Bonus{
			RatioPct:            70,
			DefaultBenchmarkPct: 10,
			TWAPWindowSeconds:   3600,
		},
		Cooldown: Cooldown{PeriodSeconds: 7 * 24 * 3600},
		Revenue: Revenue{
			ProtocolFeePct:  10,
			ReserveRatioPct: 50,
			LPYieldSharePct: 30,
		},
		Withdraw: Withdraw{SlashFeePct: 5, MaxLockSeconds: 4 * 365 * 24 * 3600},
		Keeper: Keeper{
			Enabled:         true,
			EmitSchedule:    "@every 30s",
			RecycleSchedule: "@every 1h",
			HarvestSchedule: "@every 10m",
		},
		Logging: Logging{Level: "info"},
		HTTP:    HTTP{ListenAddress: ":8090", RequestsPerMinute: 600, Burst: 60},
	}
}

// Load reads the configuration at path, TOML or YAML by extension. A
// missing file is created with Default values. Unknown keys are rejected in
// both formats.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return createDefault(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := decode(path, data, &cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	case ".toml", "":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config file %s has unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := persist(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	default:
		return toml.NewEncoder(f).Encode(cfg)
	}
}
