package replay

import (
	"context"
	"sync"
	"time"

	"coinpayments-webhooks/internal/clock"
)

// sweepEvery bounds how many claims happen between expiry sweeps.
const sweepEvery = 256

// MemoryGuard keeps claims in process memory. It suits single-instance
// deployments; claims are lost on restart.
type MemoryGuard struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]time.Time
	claims  int
}

// NewMemoryGuard returns a guard whose expiry is measured with clk.
// A nil clk uses the system clock.
func NewMemoryGuard(clk clock.Clock) *MemoryGuard {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryGuard{
		clock:   clk,
		entries: make(map[string]time.Time),
	}
}

func (g *MemoryGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.claims++
	if g.claims%sweepEvery == 0 {
		g.sweep(now)
	}

	if expires, ok := g.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	g.entries[key] = now.Add(ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.entries, key)
	g.mu.Unlock()
	return nil
}

func (g *MemoryGuard) Health(context.Context) error { return nil }

func (g *MemoryGuard) Name() string { return "memory" }

// Len returns the number of claims currently stored, expired or not.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// sweep drops expired entries. Caller holds g.mu.
func (g *MemoryGuard) sweep(now time.Time) {
	for key, expires := range g.entries {
		if !now.Before(expires) {
			delete(g.entries, key)
		}
	}
}
