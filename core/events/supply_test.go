package events

import (
	"math/big"
	"testing"
)

func TestTokenSupplyEvent(t *testing.T) {
	evt := TokenSupply{
		Token:    "yld",
		Total:    big.NewInt(5000),
		Delta:    big.NewInt(250),
		Unissued: big.NewInt(40),
		Reason:   SupplyReasonRecycle,
	}.Event()
	if evt == nil {
		t.Fatalf("expected event")
	}
	if evt.Type != TypeTokenSupply {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["token"] != "YLD" {
		t.Fatalf("unexpected token attr: %s", evt.Attributes["token"])
	}
	if evt.Attributes["total"] != "5000" || evt.Attributes["delta"] != "250" || evt.Attributes["unissued"] != "40" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["reason"] != SupplyReasonRecycle {
		t.Fatalf("unexpected reason: %s", evt.Attributes["reason"])
	}
}

func TestTokenSupplyEventDefaults(t *testing.T) {
	evt := TokenSupply{}.Event()
	if evt.Attributes["token"] != "UNKNOWN" || evt.Attributes["total"] != "0" {
		t.Fatalf("unexpected defaults: %+v", evt.Attributes)
	}
	if _, ok := evt.Attributes["delta"]; ok {
		t.Fatalf("delta should be omitted when nil")
	}
}
