package cooldown

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/core/types"
	"yieldcore/observability/metrics"
)

// DefaultPeriod is applied when no cooldown period is configured.
const DefaultPeriod = 7 * 24 * time.Hour

var (
	errNilState = fmt.Errorf("cooldown queue: state not configured: %w", farmerrors.ErrInvalidState)

	ErrInvalidAmount = farmerrors.New(farmerrors.ErrInvalidInput, "cooldown: amount must be positive")
)

type engineState interface {
	CooldownEntries() ([]types.CooldownRecord, error)
	PutCooldownEntries(entries []types.CooldownRecord) error
	Atomic(fn func() error) error
	OnCommit(fn func())
	Emit(events.Event)
}

// Recycler returns tokens held by the vault to the unissued bucket.
type Recycler interface {
	Recycle(from common.Address, amount *big.Int) error
}

// Queue holds reversed bonus tokens at the vault address until their release
// time, then recycles them out of circulation.
type Queue struct {
	state   engineState
	tokens  Recycler
	vault   common.Address
	period  time.Duration
	nowFn   func() time.Time
	newID   func() string
	metrics *metrics.FarmingMetrics
}

// NewQueue constructs a cooldown queue whose tokens sit at vault.
func NewQueue(vault common.Address, period time.Duration) *Queue {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Queue{
		vault:   vault,
		period:  period,
		nowFn:   time.Now,
		newID:   func() string { return uuid.NewString() },
		metrics: metrics.Farming(),
	}
}

// SetState wires the queue to the persistence layer.
func (q *Queue) SetState(state engineState) { q.state = state }

// SetTokens wires the token used to recycle matured entries.
func (q *Queue) SetTokens(tokens Recycler) { q.tokens = tokens }

// SetNowFunc overrides the clock used for release times.
func (q *Queue) SetNowFunc(now func() time.Time) {
	if now == nil {
		q.nowFn = time.Now
		return
	}
	q.nowFn = now
}

// Vault returns the address holding queued tokens.
func (q *Queue) Vault() common.Address { return q.vault }

// Period returns the configured cooldown period.
func (q *Queue) Period() time.Duration { return q.period }

// Enqueue records amount for release after the cooldown period. The tokens
// must already be held by the vault.
func (q *Queue) Enqueue(amount *big.Int) (*types.CooldownRecord, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	record := types.CooldownRecord{
		ID:          q.newID(),
		Amount:      new(big.Int).Set(amount),
		ReleaseTime: uint64(q.nowFn().Add(q.period).Unix()),
	}
	err := q.state.Atomic(func() error {
		entries, err := q.state.CooldownEntries()
		if err != nil {
			return err
		}
		entries = append(entries, record)
		if err := q.state.PutCooldownEntries(entries); err != nil {
			return err
		}
		q.state.Emit(events.CooldownQueued{ID: record.ID, Amount: record.Amount, ReleaseTime: record.ReleaseTime})
		depth := len(entries)
		q.state.OnCommit(func() { q.metrics.SetCooldownDepth(depth) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := record.Clone()
	return &out, nil
}

// RecycleMatured removes every entry whose release time has passed and
// recycles their sum. It returns zero when nothing has matured.
func (q *Queue) RecycleMatured() (*big.Int, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	now := uint64(q.nowFn().Unix())
	total := big.NewInt(0)
	err := q.state.Atomic(func() error {
		entries, err := q.state.CooldownEntries()
		if err != nil {
			return err
		}
		matured := 0
		for i := 0; i < len(entries); {
			if entries[i].ReleaseTime > now {
				i++
				continue
			}
			total.Add(total, entries[i].Amount)
			last := len(entries) - 1
			entries[i] = entries[last]
			entries = entries[:last]
			matured++
		}
		depth := len(entries)
		q.state.OnCommit(func() { q.metrics.SetCooldownDepth(depth) })
		if total.Sign() == 0 {
			return nil
		}
		if q.tokens == nil {
			return fmt.Errorf("cooldown queue: token not configured: %w", farmerrors.ErrInvalidState)
		}
		if err := q.state.PutCooldownEntries(entries); err != nil {
			return err
		}
		if err := q.tokens.Recycle(q.vault, total); err != nil {
			return err
		}
		q.state.Emit(events.CooldownRecycled{Amount: new(big.Int).Set(total), Entries: matured, Timestamp: now})
		recycled := new(big.Int).Set(total)
		q.state.OnCommit(func() { q.metrics.AddRecycled(recycled) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// Entries returns the queued records in storage order.
func (q *Queue) Entries() ([]types.CooldownRecord, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	entries, err := q.state.CooldownEntries()
	if err != nil {
		return nil, err
	}
	out := make([]types.CooldownRecord, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out, nil
}
