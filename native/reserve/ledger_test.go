package reserve

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/state"
	"yieldcore/native/token"
	"yieldcore/storage"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	funder   = common.HexToAddress("0x00000000000000000000000000000000000000e3")
	tokenID  = common.HexToAddress("0x00000000000000000000000000000000000000e4")
)

type fixture struct {
	ledger *Ledger
	token  *token.Engine
	rec    *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}
	mgr.SetEmitter(rec)
	tok := token.NewEngine("YLD", tokenID)
	tok.SetState(mgr)
	ledger := NewLedger(owner, treasury)
	ledger.SetState(mgr)
	ledger.SetTokens(tok)
	return &fixture{ledger: ledger, token: tok, rec: rec}
}

func TestDebitFailsInsteadOfClamping(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.Credit(big.NewInt(50), ReasonRevenue))

	err := f.ledger.Debit(big.NewInt(51), ReasonBonusIssued)
	require.ErrorIs(t, err, ErrInsufficientReserves)
	require.ErrorIs(t, err, farmerrors.ErrInsufficientFunds)

	reserves, err := f.ledger.ProtocolReserves()
	require.NoError(t, err)
	require.Equal(t, int64(50), reserves.Int64())

	require.NoError(t, f.ledger.Debit(big.NewInt(50), ReasonBonusIssued))
	reserves, err = f.ledger.ProtocolReserves()
	require.NoError(t, err)
	require.Zero(t, reserves.Sign())
}

func TestCreditEmissionBooksBothCounters(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.CreditEmission(big.NewInt(30)))
	require.NoError(t, f.ledger.Credit(big.NewInt(5), ReasonRevenue))

	balances, err := f.ledger.Balances()
	require.NoError(t, err)
	require.Equal(t, int64(35), balances.ProtocolReserves.Int64())
	require.Equal(t, int64(30), balances.EmissionReserve.Int64())

	changes := f.rec.OfType(events.TypeReservesChanged)
	require.Len(t, changes, 2)
	require.Equal(t, ReasonEmission, changes[0].Attributes["reason"])
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Credit(big.NewInt(0), ReasonRevenue); !errors.Is(err, farmerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := f.ledger.Debit(nil, ReasonRevenue); !errors.Is(err, farmerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestFundAndReleaseRequireOwner(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.token.Mint(funder, big.NewInt(100)))

	require.ErrorIs(t, f.ledger.Fund(funder, funder, big.NewInt(10)), farmerrors.ErrUnauthorized)
	require.NoError(t, f.ledger.Fund(owner, funder, big.NewInt(60)))

	held, err := f.token.BalanceOf(treasury)
	require.NoError(t, err)
	require.Equal(t, int64(60), held.Int64())

	require.ErrorIs(t, f.ledger.Release(funder, funder, big.NewInt(1)), farmerrors.ErrUnauthorized)
	require.ErrorIs(t, f.ledger.Release(owner, funder, big.NewInt(61)), ErrInsufficientReserves)
	require.NoError(t, f.ledger.Release(owner, funder, big.NewInt(20)))

	reserves, err := f.ledger.ProtocolReserves()
	require.NoError(t, err)
	require.Equal(t, int64(40), reserves.Int64())
	back, err := f.token.BalanceOf(funder)
	require.NoError(t, err)
	require.Equal(t, int64(60), back.Int64())
}

func TestFundRevertsCreditWhenTransferFails(t *testing.T) {
	f := newFixture(t)
	err := f.ledger.Fund(owner, funder, big.NewInt(10))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
	reserves, err := f.ledger.ProtocolReserves()
	require.NoError(t, err)
	require.Zero(t, reserves.Sign())
	require.Empty(t, f.rec.OfType(events.TypeReservesChanged))
}
