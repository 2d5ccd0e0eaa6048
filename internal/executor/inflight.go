package executor

import (
	"sync"
	"time"
)

// InFlight tracks the orders this process is currently ticking so that a
// slow tick is never overlapped by the next poll. It is safe for concurrent
// use.
type InFlight struct {
	active map[string]time.Time // orderID -> tick start
	mu     sync.Mutex
}

// NewInFlight creates an empty guard.
func NewInFlight() *InFlight {
	return &InFlight{active: make(map[string]time.Time)}
}

// TryAcquire marks id as in flight. It returns false when id is already held.
func (g *InFlight) TryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[id]; ok {
		return false
	}
	g.active[id] = time.Now()
	return true
}

// Release clears id.
func (g *InFlight) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, id)
}

// Len returns the number of ticks in flight.
func (g *InFlight) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// Oldest returns how long the longest running tick has been in flight, or
// zero when nothing is running.
func (g *InFlight) Oldest() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	var oldest time.Duration
	now := time.Now()
	for _, started := range g.active {
		if d := now.Sub(started); d > oldest {
			oldest = d
		}
	}
	return oldest
}
