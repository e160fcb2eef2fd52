package emission

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"yieldcore/core/events"
	"yieldcore/core/state"
	nativecommon "yieldcore/native/common"
	"yieldcore/native/reserve"
	"yieldcore/native/token"
	"yieldcore/storage"
)

var (
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	tokenID  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type harness struct {
	scheduler *Scheduler
	token     *token.Engine
	ledger    *reserve.Ledger
	rec       *events.Recorder
	now       time.Time
}

func newHarness(t *testing.T, params Params) *harness {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	h := &harness{rec: &events.Recorder{}, now: time.Unix(1_700_000_000, 0)}
	mgr.SetEmitter(h.rec)
	h.token = token.NewEngine("YLD", tokenID)
	h.token.SetState(mgr)
	h.ledger = reserve.NewLedger(owner, treasury)
	h.ledger.SetState(mgr)
	scheduler, err := NewScheduler(params, treasury)
	require.NoError(t, err)
	scheduler.SetState(mgr)
	scheduler.SetMinter(h.token)
	scheduler.SetReserves(h.ledger)
	scheduler.SetNowFunc(func() time.Time { return h.now })
	require.NoError(t, scheduler.Initialize(h.now))
	h.scheduler = scheduler
	return h
}

func testParams() Params {
	return Params{
		EmissionSupply:      new(big.Int).Mul(big.NewInt(1_000), oneToken),
		InitialRate:         new(big.Int).Set(oneToken),
		NominalInterval:     30 * time.Second,
		MinEmissionInterval: 20 * time.Second,
		HalvingInterval:     24 * time.Hour,
	}
}

func TestEmitMintsWholeIntervals(t *testing.T) {
	h := newHarness(t, testParams())
	h.now = h.now.Add(90 * time.Second)

	minted, err := h.scheduler.Emit()
	require.NoError(t, err)
	expected := new(big.Int).Mul(big.NewInt(3), oneToken)
	require.Zero(t, minted.Cmp(expected))

	st, err := h.scheduler.State()
	require.NoError(t, err)
	require.Zero(t, st.TotalEmitted.Cmp(expected))
	require.Equal(t, uint64(h.now.Unix()), st.LastEmissionTime)

	held, err := h.token.BalanceOf(treasury)
	require.NoError(t, err)
	require.Zero(t, held.Cmp(expected))

	balances, err := h.ledger.Balances()
	require.NoError(t, err)
	require.Zero(t, balances.ProtocolReserves.Cmp(expected))
	require.Zero(t, balances.EmissionReserve.Cmp(expected))

	mintedEvents := h.rec.OfType(events.TypeEmissionMinted)
	require.Len(t, mintedEvents, 1)
	require.Equal(t, "3", mintedEvents[0].Attributes["intervals"])
}

func TestEmitDropsSubIntervalRemainder(t *testing.T) {
	h := newHarness(t, testParams())
	h.now = h.now.Add(59 * time.Second)
	minted, err := h.scheduler.Emit()
	require.NoError(t, err)
	require.Zero(t, minted.Cmp(oneToken))

	h.now = h.now.Add(29 * time.Second)
	minted, err = h.scheduler.Emit()
	require.NoError(t, err)
	require.Zero(t, minted.Sign())
}

func TestEmitThrottle(t *testing.T) {
	h := newHarness(t, testParams())
	h.now = h.now.Add(19 * time.Second)
	if _, err := h.scheduler.Emit(); !errors.Is(err, ErrTooSoon) {
		t.Fatalf("expected too soon, got %v", err)
	}
	h.now = h.now.Add(time.Second)
	minted, err := h.scheduler.Emit()
	require.NoError(t, err)
	require.Zero(t, minted.Sign(), "20s is below one nominal interval")
}

func TestHalvingAppliesOneStepPerCall(t *testing.T) {
	params := testParams()
	params.EmissionSupply = new(big.Int).Mul(big.NewInt(1_000_000), oneToken)
	h := newHarness(t, params)
	h.now = h.now.Add(72 * time.Hour)

	_, err := h.scheduler.Emit()
	require.NoError(t, err)
	st, err := h.scheduler.State()
	require.NoError(t, err)
	half := new(big.Int).Rsh(oneToken, 1)
	require.Zero(t, st.EmissionPerInterval.Cmp(half), "three elapsed halving periods still halve once")
	require.Equal(t, uint64(h.now.Unix()), st.LastHalvingTime)

	intervals := int64((72 * time.Hour) / (30 * time.Second))
	expected := new(big.Int).Mul(big.NewInt(intervals), half)
	require.Zero(t, st.TotalEmitted.Cmp(expected))
	require.Len(t, h.rec.OfType(events.TypeHalvingOccurred), 1)
}

func TestEmitClampsToSupply(t *testing.T) {
	params := testParams()
	params.EmissionSupply = new(big.Int).Mul(big.NewInt(2), oneToken)
	h := newHarness(t, params)
	h.now = h.now.Add(150 * time.Second)

	minted, err := h.scheduler.Emit()
	require.NoError(t, err)
	require.Zero(t, minted.Cmp(params.EmissionSupply))

	h.now = h.now.Add(time.Hour)
	minted, err = h.scheduler.Emit()
	require.NoError(t, err)
	require.Zero(t, minted.Sign())
	st, err := h.scheduler.State()
	require.NoError(t, err)
	require.Zero(t, st.TotalEmitted.Cmp(params.EmissionSupply))
}

func TestEmitRevertsWhenTokenCapHit(t *testing.T) {
	h := newHarness(t, testParams())
	require.NoError(t, h.token.Configure(oneToken))
	h.now = h.now.Add(60 * time.Second)

	_, err := h.scheduler.Emit()
	require.ErrorIs(t, err, token.ErrSupplyCapExceeded)
	st, err := h.scheduler.State()
	require.NoError(t, err)
	require.Zero(t, st.TotalEmitted.Sign())
	balances, err := h.ledger.Balances()
	require.NoError(t, err)
	require.Zero(t, balances.ProtocolReserves.Sign())
}

func TestEmitHonoursPause(t *testing.T) {
	h := newHarness(t, testParams())
	h.scheduler.SetPauses(nativecommon.NewPauses("emission"))
	h.now = h.now.Add(time.Minute)
	_, err := h.scheduler.Emit()
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}

func TestInitializeIsIdempotent(t *testing.T) {
	h := newHarness(t, testParams())
	genesis := uint64(h.now.Unix())
	require.NoError(t, h.scheduler.Initialize(h.now.Add(time.Hour)))
	st, err := h.scheduler.State()
	require.NoError(t, err)
	require.Equal(t, genesis, st.LastEmissionTime)
	require.Equal(t, genesis, st.LastHalvingTime)
}
