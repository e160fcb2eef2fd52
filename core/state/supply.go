package state

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"yieldcore/core/types"
)

var (
	tokenSupplyPrefix  = []byte("token/supply/")
	tokenBalancePrefix = []byte("token/balance/")
	allowancePrefix    = []byte("token/allowance/")
)

func tokenSupplyKey(symbol string) []byte {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	key := make([]byte, len(tokenSupplyPrefix)+len(normalized))
	copy(key, tokenSupplyPrefix)
	copy(key[len(tokenSupplyPrefix):], normalized)
	return key
}

func tokenBalanceKey(symbol string, holder common.Address) []byte {
	base := tokenSupplyKey(symbol)
	key := make([]byte, 0, len(tokenBalancePrefix)+len(base)+common.AddressLength)
	key = append(key, tokenBalancePrefix...)
	key = append(key, base[len(tokenSupplyPrefix):]...)
	key = append(key, holder.Bytes()...)
	return key
}

func allowanceKey(symbol string, owner, spender common.Address) []byte {
	base := tokenSupplyKey(symbol)
	key := make([]byte, 0, len(allowancePrefix)+len(base)+2*common.AddressLength)
	key = append(key, allowancePrefix...)
	key = append(key, base[len(tokenSupplyPrefix):]...)
	key = append(key, owner.Bytes()...)
	key = append(key, spender.Bytes()...)
	return key
}

// TokenSupply returns the persisted supply record for the provided token.
// Missing entries default to zero supply and no cap.
func (m *Manager) TokenSupply(symbol string) (*types.TokenSupply, error) {
	if m == nil {
		return nil, fmt.Errorf("state manager unavailable")
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return nil, fmt.Errorf("token symbol required")
	}
	supply := new(types.TokenSupply)
	if _, err := m.KVGet(tokenSupplyKey(normalized), supply); err != nil {
		return nil, err
	}
	if supply.Total == nil {
		supply.Total = big.NewInt(0)
	}
	if supply.MaxSupply == nil {
		supply.MaxSupply = big.NewInt(0)
	}
	return supply, nil
}

// SetTokenSupply overwrites the stored supply record for the token.
func (m *Manager) SetTokenSupply(symbol string, supply *types.TokenSupply) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("token symbol required")
	}
	if supply == nil {
		return fmt.Errorf("token %s supply required", normalized)
	}
	if supply.Total != nil && supply.Total.Sign() < 0 {
		return fmt.Errorf("token %s supply cannot be negative", normalized)
	}
	return m.KVPut(tokenSupplyKey(normalized), supply)
}

// AdjustTokenSupply increments the stored total supply by the supplied delta and
// returns the updated total.
func (m *Manager) AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error) {
	supply, err := m.TokenSupply(symbol)
	if err != nil {
		return nil, err
	}
	if delta == nil {
		delta = big.NewInt(0)
	}
	updated := new(big.Int).Add(supply.Total, delta)
	if updated.Sign() < 0 {
		return nil, fmt.Errorf("token %s supply underflow", strings.ToUpper(strings.TrimSpace(symbol)))
	}
	supply.Total = updated
	if err := m.SetTokenSupply(symbol, supply); err != nil {
		return nil, err
	}
	return new(big.Int).Set(updated), nil
}

// TokenBalance returns holder's balance of the token.
func (m *Manager) TokenBalance(symbol string, holder common.Address) (*big.Int, error) {
	return m.getBig(tokenBalanceKey(symbol, holder))
}

// SetTokenBalance overwrites holder's balance of the token.
func (m *Manager) SetTokenBalance(symbol string, holder common.Address, amount *big.Int) error {
	if amount != nil && amount.Sign() < 0 {
		return fmt.Errorf("token %s balance cannot be negative", strings.ToUpper(strings.TrimSpace(symbol)))
	}
	return m.putBig(tokenBalanceKey(symbol, holder), amount)
}

// TokenAllowance returns how much spender may pull from owner.
func (m *Manager) TokenAllowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	return m.getBig(allowanceKey(symbol, owner, spender))
}

// SetTokenAllowance overwrites the allowance granted by owner to spender.
func (m *Manager) SetTokenAllowance(symbol string, owner, spender common.Address, amount *big.Int) error {
	if amount != nil && amount.Sign() < 0 {
		return fmt.Errorf("token %s allowance cannot be negative", strings.ToUpper(strings.TrimSpace(symbol)))
	}
	return m.putBig(allowanceKey(symbol, owner, spender), amount)
}
