package opsapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"yieldcore/core/state"
	"yieldcore/core/types"
	"yieldcore/native/accumulator"
	"yieldcore/native/cooldown"
	"yieldcore/native/emission"
	"yieldcore/native/farm"
	"yieldcore/native/reserve"
	"yieldcore/native/token"
	"yieldcore/storage"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	farmAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	provider = common.HexToAddress("0x0000000000000000000000000000000000000011")
)

type noopBonus struct{}

func (noopBonus) IssueBonus(context.Context, common.Address, common.Address, common.Address, *big.Int, uint64) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (noopBonus) ReverseBonus(common.Address, common.Address, common.Address, bool) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (noopBonus) Unpin(common.Address, common.Address, common.Address) error { return nil }

type idleStrategy struct{}

func (idleStrategy) Harvest(context.Context) (*big.Int, error) { return big.NewInt(0), nil }
func (idleStrategy) Deploy(context.Context, *big.Int) error { return nil }
func (idleStrategy) Withdraw(context.Context, *big.Int) error { return nil }

func newTestServer(t *testing.T, opts ...func(*Config)) *Server {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	tok := token.NewEngine("YLD", common.HexToAddress("0xaa"))
	tok.SetState(mgr)
	acc := accumulator.NewEngine()
	acc.SetState(mgr)
	acc.SetTokens(tok)

	engine, err := farm.NewEngine(farm.Config{Admin: admin, SubsidySymbol: "YLD"})
	require.NoError(t, err)
	engine.SetState(mgr)
	engine.SetYield(acc)
	engine.SetBonus(noopBonus{})
	engine.SetStrategy("idle", idleStrategy{})
	engine.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, engine.CreateFarm(admin, types.FarmEntry{
		Farm: farmAddr, Owner: admin, AssetID: "usdc", VerifierSplit: 20, YodaSplit: 10, Strategy: "idle",
	}))
	_, err = engine.Deposit(context.Background(), farmAddr, provider, big.NewInt(500), time.Hour)
	require.NoError(t, err)

	ledger := reserve.NewLedger(admin, treasury)
	ledger.SetState(mgr)
	require.NoError(t, ledger.Credit(big.NewInt(42), reserve.ReasonFunded))

	queue := cooldown.NewQueue(common.HexToAddress("0xc0"), time.Hour)
	queue.SetState(mgr)

	sched, err := emission.NewScheduler(emission.DefaultParams(), treasury)
	require.NoError(t, err)
	sched.SetState(mgr)

	cfg := Config{
		Farms:    engine,
		Reserves: ledger,
		Emission: sched,
		Cooldown: queue,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Header().Get("Content-Type") != "application/json" {
		return rec.Code, nil
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	code, _ := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, code)
	code, _ = get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, code)
}

func TestFarmEndpoints(t *testing.T) {
	srv := newTestServer(t)

	code, body := get(t, srv, "/v1/farms")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []any{farmAddr.Hex()}, body["farms"])

	code, body = get(t, srv, "/v1/farms/"+farmAddr.Hex())
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "USDC", body["assetId"])
	require.Equal(t, "500", body["totalLiquidity"])
	require.Equal(t, float64(70), body["ownerSplit"])

	code, body = get(t, srv, "/v1/farms/"+farmAddr.Hex()+"/positions/"+provider.Hex())
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "500", body["principal"])
	require.Equal(t, "0", body["pendingYield"])
}

func TestFarmEndpointErrors(t *testing.T) {
	srv := newTestServer(t)
	code, body := get(t, srv, "/v1/farms/not-an-address")
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body["error"], "invalid farm address")

	code, body = get(t, srv, "/v1/farms/"+provider.Hex())
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "invalid_input", body["kind"])
}

func TestLedgerEndpoints(t *testing.T) {
	srv := newTestServer(t)
	code, body := get(t, srv, "/v1/reserves")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "42", body["protocolReserves"])

	code, _ = get(t, srv, "/v1/emission")
	require.Equal(t, http.StatusServiceUnavailable, code)

	code, body = get(t, srv, "/v1/cooldown")
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, body["entries"])
}
