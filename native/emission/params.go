package emission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	farmerrors "yieldcore/core/errors"
)

// ErrInvalidParams tags every rejected emission parameter.
var ErrInvalidParams = farmerrors.New(farmerrors.ErrInvalidInput, "emission: invalid params")

// Params configures the emission schedule.
type Params struct {
	// EmissionSupply caps the cumulative amount the scheduler may mint.
	EmissionSupply *big.Int
	// InitialRate is minted per nominal interval until the first halving.
	InitialRate *big.Int
	// NominalInterval is a fixed accounting unit, not a block time.
	NominalInterval     time.Duration
	MinEmissionInterval time.Duration
	HalvingInterval     time.Duration
}

// DefaultParams mirrors the production deployment: one token per 30s
// interval, a 20s throttle and a four year halving period.
func DefaultParams() Params {
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return Params{
		EmissionSupply:      new(big.Int).Mul(big.NewInt(50_000_000), oneToken),
		InitialRate:         oneToken,
		NominalInterval:     30 * time.Second,
		MinEmissionInterval: 20 * time.Second,
		HalvingInterval:     4 * 365 * 24 * time.Hour,
	}
}

// Validate reports the first inconsistency in the parameters.
func (p Params) Validate() error {
	if p.EmissionSupply == nil || p.EmissionSupply.Sign() <= 0 {
		return fmt.Errorf("%w: emissionSupply must be positive", ErrInvalidParams)
	}
	if p.InitialRate == nil || p.InitialRate.Sign() < 0 {
		return fmt.Errorf("%w: initialRate must not be negative", ErrInvalidParams)
	}
	if p.NominalInterval < time.Second {
		return fmt.Errorf("%w: nominalInterval must be at least one second", ErrInvalidParams)
	}
	if p.MinEmissionInterval < 0 {
		return fmt.Errorf("%w: minEmissionInterval must not be negative", ErrInvalidParams)
	}
	if p.HalvingInterval < time.Second {
		return fmt.Errorf("%w: halvingInterval must be at least one second", ErrInvalidParams)
	}
	return nil
}

type fileParams struct {
	EmissionSupply      string `json:"emissionSupply" toml:"emissionSupply"`
	InitialRate         string `json:"initialRate" toml:"initialRate"`
	NominalInterval     uint64 `json:"nominalIntervalSeconds" toml:"nominalIntervalSeconds"`
	MinEmissionInterval uint64 `json:"minEmissionIntervalSeconds" toml:"minEmissionIntervalSeconds"`
	HalvingInterval     uint64 `json:"halvingIntervalSeconds" toml:"halvingIntervalSeconds"`
}

// LoadParams reads emission parameters from a JSON or TOML file. Unknown
// fields are rejected.
func LoadParams(path string) (Params, error) {
	if strings.TrimSpace(path) == "" {
		return Params{}, fmt.Errorf("%w: params path required", ErrInvalidParams)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("emission: read params: %w", err)
	}
	var parsed fileParams
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&parsed); err != nil {
			return Params{}, fmt.Errorf("%w: decode json: %w", ErrInvalidParams, err)
		}
	case ".toml", ".tml":
		meta, err := toml.DecodeReader(bytes.NewReader(data), &parsed)
		if err != nil {
			return Params{}, fmt.Errorf("%w: decode toml: %w", ErrInvalidParams, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Params{}, fmt.Errorf("%w: unknown fields %v", ErrInvalidParams, undecoded)
		}
	default:
		return Params{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidParams, ext)
	}
	return parsed.toParams()
}

func (f fileParams) toParams() (Params, error) {
	supply, err := ParseAmount("emissionSupply", f.EmissionSupply)
	if err != nil {
		return Params{}, err
	}
	rate, err := ParseAmount("initialRate", f.InitialRate)
	if err != nil {
		return Params{}, err
	}
	params := Params{
		EmissionSupply:      supply,
		InitialRate:         rate,
		NominalInterval:     time.Duration(f.NominalInterval) * time.Second,
		MinEmissionInterval: time.Duration(f.MinEmissionInterval) * time.Second,
		HalvingInterval:     time.Duration(f.HalvingInterval) * time.Second,
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// ParseAmount decodes a base-10 token amount.
func ParseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s required", ErrInvalidParams, field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s invalid", ErrInvalidParams, field)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s cannot be negative", ErrInvalidParams, field)
	}
	return amount, nil
}
