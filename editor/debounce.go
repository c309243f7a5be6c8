package editor

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before editor changes propagate.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer delivers only the latest value once no new value has arrived
// for the configured delay.
type Debouncer struct {
	delay time.Duration
	fn    func(string)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // identifies the live timer
	pending string
	stopped bool
}

func NewDebouncer(delay time.Duration, fn func(string)) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Push schedules v, replacing any value still waiting.
func (d *Debouncer) Push(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire runs when a timer expires. A timer that was replaced or flushed
// while waiting for the lock delivers nothing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || d.timer == nil || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.timer = nil
	d.mu.Unlock()
	d.fn(v)
}

// Flush delivers a waiting value immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer == nil || d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	v := d.pending
	d.mu.Unlock()
	d.fn(v)
}

// Stop drops any waiting value and disables the debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
