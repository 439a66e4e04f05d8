package kernel

// TaskContext stands in for the callee-saved register frame (ra, sp,
// s0..s11) a context switch swaps. Go cannot express "resume at a saved program
// counter with a saved stack pointer" directly, so TaskContext instead
// carries the single channel that stands in for that saved continuation:
// the goroutine logically "suspended in" this context is parked
// receiving on wake, and resuming the context means sending on it. The
// goroutine's real call stack, which Go itself manages, plays the role
// a kernel stack plays on real hardware.
type TaskContext struct {
	wake chan struct{}
}

// NewTaskContext returns a context with nothing yet parked in it. It must
// be switched into only after something is listening on wake (either a
// freshly spawned task goroutine's "not started yet" gate, or a
// goroutine that has itself called switchTo to suspend here).
func NewTaskContext() *TaskContext {
	return &TaskContext{wake: make(chan struct{})}
}

// switchTo is the context switch: wake the goroutine
// parked in "to", then park the calling goroutine in "from" until some
// later switchTo resumes it. Exactly one goroutine may be waiting to
// resume "to" and exactly one goroutine may switch into "from" expecting
// to be the one parked there; the scheduler's locking discipline is what
// guarantees that.
func switchTo(from, to *TaskContext) {
	to.wake <- struct{}{}
	<-from.wake
}

// park blocks the calling goroutine until this context is next resumed.
// A freshly spawned task goroutine calls this immediately, standing in
// for "a freshly constructed context's ra points to trap_return": the
// goroutine does nothing until the scheduler's first switchTo targets it,
// at which point it proceeds as if returning through trap-return.
func (cx *TaskContext) park() {
	<-cx.wake
}
