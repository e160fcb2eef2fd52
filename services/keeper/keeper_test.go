package keeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yieldcore/native/emission"
	"yieldcore/native/farm"
)

type fakeMinter struct {
	calls int
	err   error
}

func (m *fakeMinter) Emit() (*big.Int, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return big.NewInt(10), nil
}

type fakeRecycler struct{ calls int }

func (r *fakeRecycler) RecycleMatured() (*big.Int, error) {
	r.calls++
	return big.NewInt(0), nil
}

type fakeHarvester struct {
	farms  []common.Address
	failOn common.Address
	pulled []common.Address
}

func (h *fakeHarvester) Farms() ([]common.Address, error) { return h.farms, nil }

func (h *fakeHarvester) PullRevenue(_ context.Context, addr common.Address) (*farm.RevenueReceipt, error) {
	h.pulled = append(h.pulled, addr)
	if addr == h.failOn {
		return nil, farm.ErrNoRoute
	}
	return &farm.RevenueReceipt{Harvested: big.NewInt(5), Net: big.NewInt(3)}, nil
}

// lockCounter records how often the shared state lock was taken.
type lockCounter struct {
	mu    sync.Mutex
	taken int
}

func (l *lockCounter) Lock() {
	l.mu.Lock()
	l.taken++
}

func (l *lockCounter) Unlock() { l.mu.Unlock() }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunEmitSwallowsThrottle(t *testing.T) {
	lock := &lockCounter{}
	k := New(Config{}, lock, quietLogger())
	minter := &fakeMinter{err: emission.ErrTooSoon}
	k.SetMinter(minter)
	if err := k.RunEmit(context.Background()); err != nil {
		t.Fatalf("throttled emit should not fail: %v", err)
	}
	minter.err = emission.ErrNotInitialised
	if err := k.RunEmit(context.Background()); !errors.Is(err, emission.ErrNotInitialised) {
		t.Fatalf("expected initialisation error, got %v", err)
	}
	if minter.calls != 2 || lock.taken != 2 {
		t.Fatalf("unexpected calls %d / locks %d", minter.calls, lock.taken)
	}
}

func TestRunRecycle(t *testing.T) {
	k := New(Config{}, nil, quietLogger())
	recycler := &fakeRecycler{}
	k.SetRecycler(recycler)
	if err := k.RunRecycle(context.Background()); err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if recycler.calls != 1 {
		t.Fatalf("expected one recycle call, got %d", recycler.calls)
	}
}

func TestRunHarvestContinuesPastFailures(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	c := common.HexToAddress("0x03")
	harvester := &fakeHarvester{farms: []common.Address{a, b, c}, failOn: b}
	k := New(Config{}, nil, quietLogger())
	k.SetHarvester(harvester)

	err := k.RunHarvest(context.Background())
	if !errors.Is(err, farm.ErrNoRoute) {
		t.Fatalf("expected joined route error, got %v", err)
	}
	if len(harvester.pulled) != 3 {
		t.Fatalf("every farm should be attempted, pulled %v", harvester.pulled)
	}
}

func TestRunHarvestStopsOnCancelledContext(t *testing.T) {
	harvester := &fakeHarvester{farms: []common.Address{common.HexToAddress("0x01")}}
	k := New(Config{}, nil, quietLogger())
	k.SetHarvester(harvester)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := k.RunHarvest(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(harvester.pulled) != 0 {
		t.Fatalf("no farm should be pulled after cancellation")
	}
}

func TestUnconfiguredJobsAreNoops(t *testing.T) {
	k := New(Config{}, nil, quietLogger())
	ctx := context.Background()
	if err := k.RunEmit(ctx); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := k.RunRecycle(ctx); err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if err := k.RunHarvest(ctx); err != nil {
		t.Fatalf("harvest: %v", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	k := New(Config{EmitSchedule: "every now and then"}, nil, quietLogger())
	k.SetMinter(&fakeMinter{})
	if err := k.Start(context.Background()); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestStartAndStop(t *testing.T) {
	k := New(Config{EmitSchedule: "@every 1h", RecycleSchedule: "@hourly"}, nil, quietLogger())
	k.SetMinter(&fakeMinter{})
	k.SetRecycler(&fakeRecycler{})
	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := k.Start(context.Background()); err == nil {
		t.Fatalf("second start should fail")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := k.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
