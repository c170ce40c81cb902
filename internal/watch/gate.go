package watch

import (
	"sync"
	"time"
)

// Gate is a leading-edge debounce: an event passes only when the full
// cooldown has elapsed since the last accepted event. Rejected events do
// not extend the cooldown, so a steady stream of changes still gets
// through once per window instead of being suppressed forever.
type Gate struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
}

// NewGate returns a gate with the given cooldown. The first event is
// always accepted.
func NewGate(cooldown time.Duration) *Gate {
	return &Gate{cooldown: cooldown}
}

// Accept reports whether an event arriving now passes the gate and, if
// so, restarts the cooldown.
func (g *Gate) Accept() bool {
	return g.acceptAt(time.Now())
}

func (g *Gate) acceptAt(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Sub(g.last) <= g.cooldown {
		return false
	}

	g.last = now

	return true
}
