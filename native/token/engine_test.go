package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/state"
	"yieldcore/storage"
)

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000002")
	vault     = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

func newTestEngine(t *testing.T, maxSupply int64) (*Engine, *events.Recorder) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}
	mgr.SetEmitter(rec)
	engine := NewEngine("yld", tokenAddr)
	engine.SetState(mgr)
	if maxSupply > 0 {
		if err := engine.Configure(big.NewInt(maxSupply)); err != nil {
			t.Fatalf("configure: %v", err)
		}
	}
	return engine, rec
}

func balanceOf(t *testing.T, engine *Engine, addr common.Address) int64 {
	t.Helper()
	bal, err := engine.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestMintEnforcesCap(t *testing.T) {
	engine, rec := newTestEngine(t, 100)
	if err := engine.Mint(alice, big.NewInt(60)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.Mint(alice, big.NewInt(41)); !errors.Is(err, ErrSupplyCapExceeded) {
		t.Fatalf("expected cap error, got %v", err)
	}
	if err := engine.Mint(alice, big.NewInt(40)); err != nil {
		t.Fatalf("mint to cap: %v", err)
	}
	total, _ := engine.TotalSupply()
	if total.Int64() != 100 {
		t.Fatalf("unexpected total %s", total)
	}
	if got := len(rec.OfType(events.TypeTokenSupply)); got != 2 {
		t.Fatalf("expected 2 supply events, got %d", got)
	}
}

func TestMintRejectsOversizedAmounts(t *testing.T) {
	engine, _ := newTestEngine(t, 0)
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := engine.Mint(alice, huge); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}
	if err := engine.Mint(alice, big.NewInt(0)); !errors.Is(err, farmerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	engine, _ := newTestEngine(t, 1_000)
	if err := engine.Mint(alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.TransferFrom(bob, alice, vault, big.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := engine.Approve(alice, bob, big.NewInt(30)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := engine.TransferFrom(bob, alice, vault, big.NewInt(20)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	allowance, _ := engine.Allowance(alice, bob)
	if allowance.Int64() != 10 {
		t.Fatalf("unexpected remaining allowance %s", allowance)
	}
	if balanceOf(t, engine, alice) != 30 || balanceOf(t, engine, vault) != 20 {
		t.Fatalf("unexpected balances after transferFrom")
	}
	if err := engine.Approve(alice, bob, big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	err := engine.TransferFrom(bob, alice, vault, big.NewInt(31))
	if !errors.Is(err, ErrInsufficientBalance) || !errors.Is(err, farmerrors.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	allowance, _ = engine.Allowance(alice, bob)
	if allowance.Int64() != 100 {
		t.Fatalf("failed transfer must not consume allowance, got %s", allowance)
	}
}

func TestBurnAndRecycle(t *testing.T) {
	engine, rec := newTestEngine(t, 1_000)
	if err := engine.Mint(vault, big.NewInt(40)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.Recycle(vault, big.NewInt(15)); err != nil {
		t.Fatalf("recycle: %v", err)
	}
	unissued, _ := engine.Unissued()
	if unissued.Int64() != 15 {
		t.Fatalf("unexpected unissued bucket %s", unissued)
	}
	total, _ := engine.TotalSupply()
	if total.Int64() != 40 {
		t.Fatalf("recycle must not change supply, got %s", total)
	}
	if err := engine.Burn(vault, big.NewInt(25)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	total, _ = engine.TotalSupply()
	if total.Int64() != 15 || balanceOf(t, engine, vault) != 0 {
		t.Fatalf("unexpected state after burn: total %s", total)
	}
	if err := engine.Burn(vault, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	recycled := 0
	for _, evt := range rec.OfType(events.TypeTokenSupply) {
		if evt.Attributes["reason"] == events.SupplyReasonRecycle {
			recycled++
			if evt.Attributes["unissued"] != "15" {
				t.Fatalf("unexpected unissued attribute %q", evt.Attributes["unissued"])
			}
		}
	}
	if recycled != 1 {
		t.Fatalf("expected one recycle event, got %d", recycled)
	}
}

func TestConfigureRejectsCapBelowSupply(t *testing.T) {
	engine, _ := newTestEngine(t, 100)
	if err := engine.Mint(alice, big.NewInt(80)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.Configure(big.NewInt(79)); !errors.Is(err, ErrSupplyCapExceeded) {
		t.Fatalf("expected cap error, got %v", err)
	}
}
