package kernel

import (
	"sync"
	"sync/atomic"
	"time"
)

// TicksPerSec is the timer interrupt rate: one tick per 10ms, counted
// directly instead of dividing a real mtime CSR by CLOCK_FREQ.
const TicksPerSec = 100

// Clock models the timer/gettimeofday collaborator: a
// monotonically increasing tick counter plus the wall-clock epoch it is
// measured from, advanced by setNextTrigger on every timer trap.
type Clock struct {
	ticks int64
	start time.Time
	mu    sync.Mutex
}

// NewClock starts the simulated clock at the current wall time, the
// epoch gettimeofday reports offsets from.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// setNextTrigger advances the tick counter, standing in for
// set_next_trigger's mtimecmp write.
func (c *Clock) setNextTrigger() {
	atomic.AddInt64(&c.ticks, 1)
}

// Ticks reports the number of timer interrupts serviced so far.
func (c *Clock) Ticks() int64 { return atomic.LoadInt64(&c.ticks) }

// GetTimeOfDay returns (seconds, microseconds) since the clock's epoch,
// backing the gettimeofday syscall.
func (c *Clock) GetTimeOfDay() (sec int64, usec int64) {
	c.mu.Lock()
	elapsed := time.Since(c.start)
	c.mu.Unlock()
	sec = int64(elapsed / time.Second)
	usec = int64((elapsed % time.Second) / time.Microsecond)
	return sec, usec
}
