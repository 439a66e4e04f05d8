package kernel

import (
	"sync"
	"sync/atomic"
)

// Processor holds one hart's scheduler-visible state: the task it is
// currently running, its idle context, and the interrupt-nest bookkeeping
// IrqSafeSpinlock relies on.
type Processor struct {
	ID HartID

	// sie reports whether this hart's local interrupts are currently
	// enabled; our stand-in for sstatus.SIE.
	sie atomic.Bool

	// noff and intena implement the xv6-style push_off/pop_off nesting
	// discipline: noff counts nested
	// IrqSafeSpinlock holds, intena remembers whether interrupts were on
	// before the first one.
	noff    int
	intena  bool
	nestMu  sync.Mutex // protects noff/intena; only ever touched by this hart, but guards against an assertion bug making that false
	current *Task
	idleCx  TaskContext
}

// NewProcessor constructs a Processor for the given hart, interrupts
// initially enabled (as they are on boot entry to the idle loop).
func NewProcessor(id HartID) *Processor {
	p := &Processor{ID: id, idleCx: *NewTaskContext()}
	p.sie.Store(true)
	return p
}

// pushOff disables local interrupts, remembering the pre-existing state
// on the outermost call, and increments the nest depth.
func (p *Processor) pushOff() {
	old := p.sie.Load()
	p.sie.Store(false)
	p.nestMu.Lock()
	if p.noff == 0 {
		p.intena = old
	}
	p.noff++
	p.nestMu.Unlock()
}

// popOff decrements the nest depth, panicking on underflow, and re-enables
// interrupts only once the nest has fully unwound and they were enabled
// on entry.
func (p *Processor) popOff() {
	if p.sie.Load() {
		panic("kernel: popOff called with interrupts already enabled")
	}
	p.nestMu.Lock()
	p.noff--
	if p.noff < 0 {
		p.nestMu.Unlock()
		panic("kernel: pop_off underflow")
	}
	reenable := p.noff == 0 && p.intena
	p.nestMu.Unlock()
	if reenable {
		p.sie.Store(true)
	}
}

// InterruptsEnabled reports this hart's simulated SIE bit. At every
// point, SIE == (initial_SIE && noff == 0).
func (p *Processor) InterruptsEnabled() bool { return p.sie.Load() }

// NestDepth reports the current IrqSafeSpinlock nest depth, for tests.
func (p *Processor) NestDepth() int {
	p.nestMu.Lock()
	defer p.nestMu.Unlock()
	return p.noff
}

// Current returns the task this hart is currently running, or nil.
func (p *Processor) Current() *Task { return p.current }

// TakeCurrent clears and returns the task this hart is currently running.
func (p *Processor) TakeCurrent() *Task {
	t := p.current
	p.current = nil
	return t
}
