package events

import (
	"math/big"
	"strings"

	"yieldcore/core/types"
)

const (
	// TypeTokenSupply is emitted whenever the subsidy token supply or its
	// unissued bucket changes.
	TypeTokenSupply = "token.supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
	// SupplyReasonRecycle identifies tokens returned to the unissued bucket.
	SupplyReasonRecycle = "recycle"
)

// TokenSupply captures a supply delta for the subsidy token.
type TokenSupply struct {
	Token    string
	Total    *big.Int
	Delta    *big.Int
	Unissued *big.Int
	Reason   string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *types.Event {
	attrs := map[string]string{}
	token := strings.ToUpper(strings.TrimSpace(e.Token))
	if token == "" {
		token = "UNKNOWN"
	}
	attrs["token"] = token
	attrs["total"] = bigString(e.Total)

	if e.Delta != nil {
		attrs["delta"] = e.Delta.String()
	}
	if e.Unissued != nil {
		attrs["unissued"] = e.Unissued.String()
	}

	reason := strings.TrimSpace(e.Reason)
	if reason != "" {
		attrs["reason"] = reason
	}

	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
