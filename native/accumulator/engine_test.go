package accumulator

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"yieldcore/core/events"
	"yieldcore/core/state"
	"yieldcore/native/token"
	"yieldcore/storage"
)

var (
	farm    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	lpOne   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	lpTwo   = common.HexToAddress("0x0000000000000000000000000000000000000012")
	tokenID = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type harness struct {
	mgr    *state.Manager
	engine *Engine
	token  *token.Engine
	rec    *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}
	mgr.SetEmitter(rec)
	tok := token.NewEngine("YLD", tokenID)
	tok.SetState(mgr)
	engine := NewEngine()
	engine.SetState(mgr)
	engine.SetTokens(tok)
	return &harness{mgr: mgr, engine: engine, token: tok, rec: rec}
}

func (h *harness) setPrincipal(t *testing.T, provider common.Address, principal int64) {
	t.Helper()
	err := h.mgr.Atomic(func() error {
		pos, err := h.mgr.Position(farm, provider)
		if err != nil {
			return err
		}
		total, err := h.mgr.TotalLiquidity(farm)
		if err != nil {
			return err
		}
		total.Sub(total, pos.Principal)
		pos.Principal = big.NewInt(principal)
		total.Add(total, pos.Principal)
		if err := h.mgr.PutPosition(pos); err != nil {
			return err
		}
		if err := h.mgr.PutTotalLiquidity(farm, total); err != nil {
			return err
		}
		return h.engine.OnPositionChange(farm, provider, pos.Principal)
	})
	if err != nil {
		t.Fatalf("set principal: %v", err)
	}
}

func (h *harness) fundVault(t *testing.T, amount int64) {
	t.Helper()
	if err := h.token.Mint(farm, big.NewInt(amount)); err != nil {
		t.Fatalf("fund vault: %v", err)
	}
}

func TestInjectYieldSplitsProRata(t *testing.T) {
	h := newHarness(t)
	h.setPrincipal(t, lpOne, 300)
	h.setPrincipal(t, lpTwo, 100)
	h.fundVault(t, 400)

	advanced, err := h.engine.InjectYield(farm, big.NewInt(400))
	if err != nil || !advanced {
		t.Fatalf("inject: advanced=%v err=%v", advanced, err)
	}
	one, _ := h.engine.PendingYield(farm, lpOne)
	two, _ := h.engine.PendingYield(farm, lpTwo)
	if one.Int64() != 300 || two.Int64() != 100 {
		t.Fatalf("unexpected pending yield: %s / %s", one, two)
	}
}

func TestInjectWithoutLiquidityIsStranded(t *testing.T) {
	h := newHarness(t)
	advanced, err := h.engine.InjectYield(farm, big.NewInt(50))
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if advanced {
		t.Fatalf("expected stranded injection")
	}
	acc, _ := h.mgr.AccYieldPerShare(farm)
	if acc.Sign() != 0 {
		t.Fatalf("accumulator must not advance, got %s", acc)
	}
	stats, _ := h.mgr.FarmStats(farm)
	if stats.StrandedYield.Int64() != 50 {
		t.Fatalf("unexpected stranded total %s", stats.StrandedYield)
	}
	if len(h.rec.OfType(events.TypeYieldStranded)) != 1 {
		t.Fatalf("expected stranded event")
	}

	h.setPrincipal(t, lpOne, 10)
	pending, _ := h.engine.PendingYield(farm, lpOne)
	if pending.Sign() != 0 {
		t.Fatalf("stranded yield must not be queued, got %s", pending)
	}
}

func TestClaimTwiceSecondIsZero(t *testing.T) {
	h := newHarness(t)
	h.setPrincipal(t, lpOne, 1_000)
	h.fundVault(t, 250)
	if _, err := h.engine.InjectYield(farm, big.NewInt(250)); err != nil {
		t.Fatalf("inject: %v", err)
	}
	first, err := h.engine.Claim(farm, lpOne)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.Int64() != 250 {
		t.Fatalf("unexpected first claim %s", first)
	}
	second, err := h.engine.Claim(farm, lpOne)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Sign() != 0 {
		t.Fatalf("expected zero second claim, got %s", second)
	}
	bal, _ := h.token.BalanceOf(lpOne)
	if bal.Int64() != 250 {
		t.Fatalf("unexpected provider balance %s", bal)
	}
	if got := len(h.rec.OfType(events.TypeYieldClaimed)); got != 1 {
		t.Fatalf("expected one claim event, got %d", got)
	}
}

func TestClaimWithoutPrincipalFails(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Claim(farm, lpOne); !errors.Is(err, ErrNoActivePosition) {
		t.Fatalf("expected no active position, got %v", err)
	}
}

func TestTopUpForfeitsPendingYield(t *testing.T) {
	h := newHarness(t)
	h.setPrincipal(t, lpOne, 100)
	h.fundVault(t, 100)
	if _, err := h.engine.InjectYield(farm, big.NewInt(100)); err != nil {
		t.Fatalf("inject: %v", err)
	}
	h.setPrincipal(t, lpOne, 200)
	pending, _ := h.engine.PendingYield(farm, lpOne)
	if pending.Sign() != 0 {
		t.Fatalf("expected pending yield reset on top-up, got %s", pending)
	}
}

func TestClaimRevertsWhenVaultShort(t *testing.T) {
	h := newHarness(t)
	h.setPrincipal(t, lpOne, 10)
	if _, err := h.engine.InjectYield(farm, big.NewInt(10)); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if _, err := h.engine.Claim(farm, lpOne); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected vault shortfall, got %v", err)
	}
	pending, _ := h.engine.PendingYield(farm, lpOne)
	if pending.Int64() != 10 {
		t.Fatalf("failed claim must leave debt untouched, got pending %s", pending)
	}
}

func strandedMetric(t *testing.T, farm common.Address) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "yield_accumulator_stranded_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "farm" && label.GetValue() == farm.Hex() {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestStrandedMetricIgnoresRevertedScopes(t *testing.T) {
	h := newHarness(t)
	empty := common.HexToAddress("0x00000000000000000000000000000000000000f7")
	before := strandedMetric(t, empty)

	err := h.mgr.Atomic(func() error {
		if _, err := h.engine.InjectYield(empty, big.NewInt(40)); err != nil {
			return err
		}
		return errors.New("later step failed")
	})
	if err == nil {
		t.Fatalf("expected the outer scope to fail")
	}
	if got := strandedMetric(t, empty); got != before {
		t.Fatalf("reverted stranding must not count, metric moved %v -> %v", before, got)
	}

	if _, err := h.engine.InjectYield(empty, big.NewInt(40)); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if got := strandedMetric(t, empty); got != before+40 {
		t.Fatalf("expected metric %v, got %v", before+40, got)
	}
}

func TestOnPositionChangeRejectsNegativePrincipal(t *testing.T) {
	h := newHarness(t)
	err := h.engine.OnPositionChange(farm, lpOne, big.NewInt(-1))
	if !errors.Is(err, ErrNegativePrincipal) {
		t.Fatalf("expected negative principal error, got %v", err)
	}
}
