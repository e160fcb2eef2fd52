package revenue

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/state"
	"yieldcore/core/types"
	"yieldcore/native/accumulator"
	"yieldcore/native/reserve"
	"yieldcore/native/token"
	"yieldcore/storage"
)

var (
	distributorAddr = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	treasury        = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	ledgerOwner     = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	rootFarm        = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	farmAddr        = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	farmOwner       = common.HexToAddress("0x00000000000000000000000000000000000000f9")
	tokenID         = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger        = common.HexToAddress("0x0000000000000000000000000000000000000099")
)

type harness struct {
	mgr         *state.Manager
	distributor *Distributor
	token       *token.Engine
	ledger      *reserve.Ledger
	rec         *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}
	mgr.SetEmitter(rec)
	tok := token.NewEngine("YLD", tokenID)
	tok.SetState(mgr)
	ledger := reserve.NewLedger(ledgerOwner, treasury)
	ledger.SetState(mgr)
	acc := accumulator.NewEngine()
	acc.SetState(mgr)
	acc.SetTokens(tok)

	distributor, err := NewDistributor(Config{
		Address:         distributorAddr,
		Treasury:        treasury,
		RootFarm:        rootFarm,
		LedgerOwner:     ledgerOwner,
		ProtocolFeePct:  10,
		ReserveRatioPct: 50,
	})
	require.NoError(t, err)
	distributor.SetState(mgr)
	distributor.SetTokens(tok)
	distributor.SetReserves(ledger)
	distributor.SetYield(acc)

	require.NoError(t, mgr.Atomic(func() error {
		return mgr.PutFarm(&types.FarmEntry{Farm: farmAddr, Owner: farmOwner, AssetID: "USDC", VerifierSplit: 20, YodaSplit: 10})
	}))
	return &harness{mgr: mgr, distributor: distributor, token: tok, ledger: ledger, rec: rec}
}

func (h *harness) balance(t *testing.T, addr common.Address) int64 {
	t.Helper()
	bal, err := h.token.BalanceOf(addr)
	require.NoError(t, err)
	return bal.Int64()
}

func TestDistributeSplitsRevenue(t *testing.T) {
	h := newHarness(t)
	verifiers := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000101"),
		common.HexToAddress("0x0000000000000000000000000000000000000102"),
		common.HexToAddress("0x0000000000000000000000000000000000000103"),
	}
	for _, v := range verifiers {
		require.NoError(t, h.distributor.RegisterVerifier(farmOwner, farmAddr, v))
	}
	require.NoError(t, h.token.Mint(distributorAddr, big.NewInt(1_000)))

	split, err := h.distributor.Distribute(farmAddr, big.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, int64(200), split.Verifiers.Int64())
	require.Equal(t, int64(66), split.PerVerifier.Int64())
	require.Equal(t, int64(100), split.Yodas.Int64())
	require.Equal(t, int64(630), split.Owner.Int64())
	require.Equal(t, int64(35), split.Reserve.Int64())
	require.Equal(t, int64(35), split.Root.Int64())
	require.Equal(t, int64(2), split.Dust.Int64())

	for _, v := range verifiers {
		require.Equal(t, int64(66), h.balance(t, v))
	}
	require.Equal(t, int64(630), h.balance(t, farmOwner))
	require.Equal(t, int64(35), h.balance(t, rootFarm))
	require.Equal(t, int64(135), h.balance(t, treasury))
	require.Equal(t, int64(2), h.balance(t, distributorAddr))

	reserves, err := h.ledger.ProtocolReserves()
	require.NoError(t, err)
	require.Equal(t, int64(135), reserves.Int64(), "reserve portion plus the unclaimed yoda share")

	// The root farm has no liquidity so its share is stranded.
	require.Len(t, h.rec.OfType(events.TypeYieldStranded), 1)
	distributed := h.rec.OfType(events.TypeRevenueDistributed)
	require.Len(t, distributed, 1)
	require.Equal(t, "2", distributed[0].Attributes["dust"])
}

func TestDistributeWithoutVerifiersCreditsReserves(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.distributor.RegisterYoda(ledgerOwner, farmAddr, stranger))
	require.NoError(t, h.token.Mint(distributorAddr, big.NewInt(100)))

	split, err := h.distributor.Distribute(farmAddr, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(10), h.balance(t, stranger))
	reserves, err := h.ledger.ProtocolReserves()
	require.NoError(t, err)
	// 20 verifier share plus half of the 7 fee on the 70 owner share.
	require.Equal(t, split.Verifiers.Int64()+split.Reserve.Int64(), reserves.Int64())
	require.Equal(t, int64(23), reserves.Int64())
}

func TestDistributeRevertsWhenVaultShort(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.token.Mint(distributorAddr, big.NewInt(10)))
	_, err := h.distributor.Distribute(farmAddr, big.NewInt(1_000))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
	require.Equal(t, int64(10), h.balance(t, distributorAddr))
	reserves, err := h.ledger.ProtocolReserves()
	require.NoError(t, err)
	require.Zero(t, reserves.Sign())
	require.Empty(t, h.rec.OfType(events.TypeRevenueDistributed))
}

func TestDistributeValidation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.distributor.Distribute(farmAddr, big.NewInt(0)); !errors.Is(err, farmerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := h.distributor.Distribute(stranger, big.NewInt(1)); !errors.Is(err, ErrUnknownFarm) {
		t.Fatalf("expected unknown farm, got %v", err)
	}
	if _, err := NewDistributor(Config{ProtocolFeePct: 101}); err == nil {
		t.Fatalf("expected fee ratio validation")
	}
}

func TestParticipantRegistration(t *testing.T) {
	h := newHarness(t)
	v := common.HexToAddress("0x0000000000000000000000000000000000000101")
	if err := h.distributor.RegisterVerifier(stranger, farmAddr, v); !errors.Is(err, farmerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	require.NoError(t, h.distributor.RegisterVerifier(farmOwner, farmAddr, v))
	require.ErrorIs(t, h.distributor.RegisterVerifier(ledgerOwner, farmAddr, v), ErrAlreadyRegistered)
	require.ErrorIs(t, h.distributor.RegisterVerifier(farmOwner, farmAddr, common.Address{}), ErrZeroAddress)

	list, err := h.distributor.Verifiers(farmAddr)
	require.NoError(t, err)
	require.Equal(t, []common.Address{v}, list)

	require.NoError(t, h.distributor.RemoveVerifier(ledgerOwner, farmAddr, v))
	require.ErrorIs(t, h.distributor.RemoveVerifier(ledgerOwner, farmAddr, v), ErrNotRegistered)
	require.ErrorIs(t, h.distributor.RemoveYoda(farmOwner, farmAddr, v), ErrNotRegistered)
	list, err = h.distributor.Verifiers(farmAddr)
	require.NoError(t, err)
	require.Empty(t, list)
}
