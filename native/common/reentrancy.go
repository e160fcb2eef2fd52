package common

import (
	"fmt"
	"sync"

	farmerrors "yieldcore/core/errors"
)

// ErrReentrant is returned when a protected entry point is entered again
// before the previous invocation released it.
var ErrReentrant = fmt.Errorf("reentrant call: %w", farmerrors.ErrInvalidState)

// ReentrancyGuard holds one in-progress marker per key. Callers acquire with
// Enter and must release through the returned function, normally via defer.
type ReentrancyGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// Enter marks key as in progress. The release function is idempotent.
func (g *ReentrancyGuard) Enter(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[string]struct{})
	}
	if _, busy := g.active[key]; busy {
		return func() {}, fmt.Errorf("%s: %w", key, ErrReentrant)
	}
	g.active[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently in progress.
func (g *ReentrancyGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[key]
	return busy
}
