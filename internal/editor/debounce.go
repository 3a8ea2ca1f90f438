package editor

import (
	"sync"
	"time"
)

// Debouncer coalesces a burst of values into a single trailing flush: the
// flush fires once the window elapses with no further Notify call, and
// carries only the most recent value.
type Debouncer struct {
	clock  Clock
	window time.Duration
	flush  func(value string)

	mu      sync.Mutex
	timer   Timer
	pending string
	armed   bool
}

func NewDebouncer(clock Clock, window time.Duration, flush func(value string)) *Debouncer {
	return &Debouncer{clock: clock, window: window, flush: flush}
}

// Notify records the latest value and restarts the quiet-period window.
func (d *Debouncer) Notify(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = value
	d.armed = true
	if d.timer == nil {
		d.timer = d.clock.AfterFunc(d.window, d.fire)
		return
	}
	d.timer.Reset(d.window)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}
	value := d.pending
	d.armed = false
	d.mu.Unlock()

	d.flush(value)
}

// Flush materializes any pending value immediately. Called on session
// teardown so a half-elapsed window does not swallow the last edit.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Stop cancels any scheduled flush without materializing it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed = false
}
