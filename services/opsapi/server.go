// Package opsapi serves the daemon's read-only operator endpoints.
package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/types"
	"yieldcore/native/emission"
	"yieldcore/native/farm"
)

type FarmReader interface {
	Farms() ([]common.Address, error)
	Snapshot(farm common.Address) (*farm.Snapshot, error)
	Position(farm, provider common.Address) (*types.Position, error)
	PendingYield(farm, provider common.Address) (*big.Int, error)
}

type ReserveReader interface {
	Balances() (*types.ReserveLedger, error)
}

type EmissionReader interface {
	State() (*types.EmissionState, error)
}

type CooldownReader interface {
	Entries() ([]types.CooldownRecord, error)
}

// Config wires the readers. Lock must be the locker the state writers hold;
// reads take it too because the state overlay is not safe for concurrent use.
type Config struct {
	ListenAddress string
	Lock          sync.Locker
	Farms         FarmReader
	Reserves      ReserveReader
	Emission      EmissionReader
	Cooldown      CooldownReader
	Logger        *slog.Logger
	// RequestsPerMinute enables per-client rate limiting of the /v1 routes
	// when positive.
	RequestsPerMinute float64
	Burst             int
}

type Server struct {
	cfg     Config
	handler http.Handler
}

// New validates cfg and builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Farms == nil || cfg.Reserves == nil || cfg.Emission == nil || cfg.Cooldown == nil {
		return nil, fmt.Errorf("opsapi: readers required")
	}
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg}
	s.handler = s.routes()
	return s, nil
}

// Handler exposes the instrumented router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RequestsPerMinute > 0 {
			r.Use(newRateLimiter(s.cfg.RequestsPerMinute, s.cfg.Burst).middleware)
		}
		r.Get("/farms", s.handleFarms)
		r.Get("/farms/{farm}", s.handleFarm)
		r.Get("/farms/{farm}/positions/{provider}", s.handlePosition)
		r.Get("/reserves", s.handleReserves)
		r.Get("/emission", s.handleEmission)
		r.Get("/cooldown", s.handleCooldown)
	})
	return otelhttp.NewHandler(r, "yieldd.ops")
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.cfg.Logger.Info("opsapi: listening", "addr", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type farmView struct {
	Farm             string           `json:"farm"`
	Owner            string           `json:"owner"`
	AssetID          string           `json:"assetId"`
	Strategy         string           `json:"strategy"`
	VerifierSplit    uint64           `json:"verifierSplit"`
	YodaSplit        uint64           `json:"yodaSplit"`
	OwnerSplit       uint64           `json:"ownerSplit"`
	TotalLiquidity   string           `json:"totalLiquidity"`
	AccYieldPerShare string           `json:"accYieldPerShare"`
	TotalHarvested   string           `json:"totalHarvested"`
	TotalConverted   string           `json:"totalConverted"`
	StrandedYield    string           `json:"strandedYield"`
	SlashedPrincipal string           `json:"slashedPrincipal"`
	OwnerFees        string           `json:"ownerFees"`
	LastHarvest      uint64           `json:"lastHarvest"`
	Benchmark        *types.Benchmark `json:"benchmark,omitempty"`
}

type positionView struct {
	Principal        string `json:"principal"`
	WeightedMaturity uint64 `json:"weightedMaturity"`
	BonusRetained    string `json:"bonusRetained"`
	PendingYield     string `json:"pendingYield"`
	LastUpdate       uint64 `json:"lastUpdate"`
}

func (s *Server) handleFarms(w http.ResponseWriter, _ *http.Request) {
	s.cfg.Lock.Lock()
	farms, err := s.cfg.Farms.Farms()
	s.cfg.Lock.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]string, 0, len(farms))
	for _, addr := range farms {
		out = append(out, addr.Hex())
	}
	writeJSON(w, http.StatusOK, map[string][]string{"farms": out})
}

func (s *Server) handleFarm(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "farm")
	if !ok {
		return
	}
	s.cfg.Lock.Lock()
	snap, err := s.cfg.Farms.Snapshot(addr)
	s.cfg.Lock.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, farmView{
		Farm:             snap.Entry.Farm.Hex(),
		Owner:            snap.Entry.Owner.Hex(),
		AssetID:          snap.Entry.AssetID,
		Strategy:         snap.Entry.Strategy,
		VerifierSplit:    snap.Entry.VerifierSplit,
		YodaSplit:        snap.Entry.YodaSplit,
		OwnerSplit:       snap.Entry.OwnerSplit(),
		TotalLiquidity:   snap.TotalLiquidity.String(),
		AccYieldPerShare: snap.AccYieldPerShare.String(),
		TotalHarvested:   snap.Stats.TotalHarvested.String(),
		TotalConverted:   snap.Stats.TotalConverted.String(),
		StrandedYield:    snap.Stats.StrandedYield.String(),
		SlashedPrincipal: snap.Stats.SlashedPrincipal.String(),
		OwnerFees:        snap.OwnerFees.String(),
		LastHarvest:      snap.Stats.LastHarvest,
		Benchmark:        snap.Benchmark,
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	farmAddr, ok := pathAddress(w, r, "farm")
	if !ok {
		return
	}
	provider, ok := pathAddress(w, r, "provider")
	if !ok {
		return
	}
	s.cfg.Lock.Lock()
	pos, err := s.cfg.Farms.Position(farmAddr, provider)
	var pending *big.Int
	if err == nil {
		pending, err = s.cfg.Farms.PendingYield(farmAddr, provider)
	}
	s.cfg.Lock.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionView{
		Principal:        pos.Principal.String(),
		WeightedMaturity: pos.WeightedMaturity,
		BonusRetained:    pos.BonusRetained.String(),
		PendingYield:     pending.String(),
		LastUpdate:       pos.LastUpdate,
	})
}

func (s *Server) handleReserves(w http.ResponseWriter, _ *http.Request) {
	s.cfg.Lock.Lock()
	ledger, err := s.cfg.Reserves.Balances()
	s.cfg.Lock.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"protocolReserves": ledger.ProtocolReserves.String(),
		"emissionReserve":  ledger.EmissionReserve.String(),
	})
}

func (s *Server) handleEmission(w http.ResponseWriter, _ *http.Request) {
	s.cfg.Lock.Lock()
	st, err := s.cfg.Emission.State()
	s.cfg.Lock.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalEmitted":        st.TotalEmitted.String(),
		"emissionPerInterval": st.EmissionPerInterval.String(),
		"lastHalvingTime":     st.LastHalvingTime,
		"lastEmissionTime":    st.LastEmissionTime,
	})
}

func (s *Server) handleCooldown(w http.ResponseWriter, _ *http.Request) {
	s.cfg.Lock.Lock()
	entries, err := s.cfg.Cooldown.Entries()
	s.cfg.Lock.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	type entryView struct {
		ID          string `json:"id"`
		Amount      string `json:"amount"`
		ReleaseTime uint64 `json:"releaseTime"`
	}
	out := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryView{ID: entry.ID, Amount: entry.Amount.String(), ReleaseTime: entry.ReleaseTime})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) (common.Address, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid %s address", param)})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.cfg.Logger.Error("opsapi: read failed", "kind", farmerrors.KindName(err), "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": farmerrors.KindName(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, farm.ErrUnknownFarm):
		return http.StatusNotFound
	case errors.Is(err, emission.ErrNotInitialised):
		return http.StatusServiceUnavailable
	case errors.Is(err, farmerrors.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
