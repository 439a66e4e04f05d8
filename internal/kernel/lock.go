// Package kernel implements the trap/scheduler/task core of the embedded
// RV64GC kernel: the IRQ-safe spinlock, per-hart processor state, task
// contexts and the context switch, trap dispatch, the PLIC/IRQ manager,
// the ready-queue scheduler, and the process/task model built on top of
// them.
//
// Harts are modeled as goroutines, each running the per-hart idle loop;
// a "context switch" is a cooperative handoff between a hart's idle
// goroutine and a task's goroutine rather than a literal register-frame
// swap, since Go code cannot express an assembly context-switch routine.
// Everything built on top of that handoff (lock discipline, FIFO
// ready-queue ordering, fork/exec/wait semantics, IRQ wake-up ordering)
// keeps the contracts a real register-swap kernel would give it.
package kernel

import (
	"fmt"
	"sync/atomic"
)

// HartID identifies one of the (small, fixed) number of harts in the
// system.
type HartID int

// IrqSafeSpinlock is a test-and-set spinlock that disables local
// interrupts while held, with per-hart nest counting. Unlike
// a plain sync.Mutex, acquiring one of these is defined to compose safely
// with the same hart's own ISR: because SIE is cleared for the entire
// critical section, an ISR cannot run concurrently with code on the same
// hart holding the lock, only on another hart (where the atomic
// compare-and-swap provides the real exclusion).
type IrqSafeSpinlock struct {
	locked atomic.Bool
	owner  atomic.Int64 // HartID of the current holder, or -1
}

// NewIrqSafeSpinlock returns an unlocked lock.
func NewIrqSafeSpinlock() *IrqSafeSpinlock {
	l := &IrqSafeSpinlock{}
	l.owner.Store(-1)
	return l
}

// Acquire disables local interrupts, remembers the pre-lock SIE state on
// the first nested acquisition, spins until the test-and-set succeeds,
// then records ownership.
//
// Acquire panics if the calling hart already holds this lock: re-entrant
// acquire is a kernel invariant violation, not a recoverable error.
func (l *IrqSafeSpinlock) Acquire(p *Processor) {
	p.pushOff()
	if l.owner.Load() == int64(p.ID) {
		panic(fmt.Sprintf("kernel: hart %d re-entrantly acquired a held IrqSafeSpinlock", p.ID))
	}
	for !l.locked.CompareAndSwap(false, true) {
		// busy-spin: another hart holds it. Local interrupts are already
		// off for this hart, so we cannot be preempted mid-spin by
		// anything this hart itself would need to make progress.
	}
	l.owner.Store(int64(p.ID))
}

// TryAcquire has the same pre-conditions as Acquire, but returns false
// instead of spinning when contended. On failure, the interrupt-disable / nest-count side effects
// of the attempt are unwound so a failed TryAcquire is a no-op.
func (l *IrqSafeSpinlock) TryAcquire(p *Processor) bool {
	p.pushOff()
	if l.owner.Load() == int64(p.ID) {
		p.popOff()
		panic(fmt.Sprintf("kernel: hart %d re-entrantly acquired a held IrqSafeSpinlock", p.ID))
	}
	if !l.locked.CompareAndSwap(false, true) {
		p.popOff()
		return false
	}
	l.owner.Store(int64(p.ID))
	return true
}

// Release asserts ownership, clears it, stores false with release
// ordering, then restores the outer interrupt state if this was the
// hart's last nested lock.
func (l *IrqSafeSpinlock) Release(p *Processor) {
	if l.owner.Load() != int64(p.ID) {
		panic(fmt.Sprintf("kernel: hart %d released an IrqSafeSpinlock it does not own", p.ID))
	}
	l.owner.Store(-1)
	l.locked.Store(false)
	p.popOff()
}

// WithLock runs fn with l held on behalf of p, releasing it even if fn
// panics; most call sites in this package use this instead of manual
// Acquire/Release pairs.
func (l *IrqSafeSpinlock) WithLock(p *Processor, fn func()) {
	l.Acquire(p)
	defer l.Release(p)
	fn()
}
