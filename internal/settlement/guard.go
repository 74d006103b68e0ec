package settlement

import (
	"sync"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
)

// DefaultCooldown keeps a member guarded after settlement finishes so the
// owner's subscriptions can observe the advanced watermark before the next
// snapshot could trigger another attempt.
const DefaultCooldown = 2 * time.Second

// Guard tracks which members currently have a settlement in flight. It is
// owned by one session or worker and passed into Engine.Settle. Different
// members never block each other.
type Guard struct {
	mu       sync.Mutex
	clock    clock.Clock
	cooldown time.Duration
	busy     map[string]*clock.Timer
}

// NewGuard creates a guard releasing members cooldown after Release.
func NewGuard(clk clock.Clock, cooldown time.Duration) *Guard {
	return &Guard{
		clock:    clk,
		cooldown: cooldown,
		busy:     make(map[string]*clock.Timer),
	}
}

// TryAcquire marks key busy and reports whether the caller now owns it.
func (g *Guard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.busy[key]; held {
		return false
	}
	g.busy[key] = nil
	return true
}

// Release frees key after the cooldown. With a zero cooldown the key is
// freed immediately.
func (g *Guard) Release(key string) {
	if g.cooldown <= 0 {
		g.free(key)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.busy[key]; !held {
		return
	}
	g.busy[key] = g.clock.AfterFunc(g.cooldown, func() { g.free(key) })
}

// Held reports whether key is busy or cooling down.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.busy[key]
	return held
}

// Close cancels pending cooldowns and frees every key.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, t := range g.busy {
		if t != nil {
			t.Stop()
		}
		delete(g.busy, key)
	}
}

func (g *Guard) free(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, key)
}
