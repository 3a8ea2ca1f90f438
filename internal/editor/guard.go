package editor

import (
	"sync"
	"time"
)

// TypingGuard suppresses remote snapshot application while the user is
// actively typing. Touch asserts the guard and restarts a fixed idle
// window; the guard clears itself once the window elapses untouched.
//
// If the window expires exactly as a remote notification arrives, the
// notification is applied. That race is accepted: the guard is a
// best-effort defense for very recent keystrokes, not an ordering
// guarantee.
type TypingGuard struct {
	clock Clock
	idle  time.Duration

	mu     sync.Mutex
	timer  Timer
	active bool
}

func NewTypingGuard(clock Clock, idle time.Duration) *TypingGuard {
	return &TypingGuard{clock: clock, idle: idle}
}

// Touch marks the user as typing and pushes the clear-out further away.
func (g *TypingGuard) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
	if g.timer == nil {
		g.timer = g.clock.AfterFunc(g.idle, g.expire)
		return
	}
	g.timer.Reset(g.idle)
}

func (g *TypingGuard) expire() {
	g.mu.Lock()
	g.active = false
	g.mu.Unlock()
}

func (g *TypingGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Stop clears the guard and cancels its timer.
func (g *TypingGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.active = false
}
