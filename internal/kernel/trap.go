package kernel

import "golang.org/x/time/rate"

// faultLogLimiter throttles the fatal-trap diagnostic printed on every
// page fault / illegal instruction, so a tight user-mode faulting loop
// cannot flood the console before the offending task is torn down.
var faultLogLimiter = rate.NewLimiter(20, 20)

// TrapContext is the user-mode register snapshot saved on entry to
// supervisor mode: general-purpose registers plus the CSRs the trap
// handler inspects to decide dispatch. Just like TaskContext,
// the "saved PC/SP" here are bookkeeping values read and written by the
// simulated user-mode stepper, not literal register state.
type TrapContext struct {
	X      [32]uint64 // x0..x31, x10/a0 used for syscall return value
	Sepc   uint64
	Sstatus uint64
	// Scause/Stval mirror the CSRs trap_handler reads to classify the
	// trap.
	Scause uint64
	Stval  uint64
}

// TrapCause enumerates the scause values trap dispatch distinguishes
// between.
type TrapCause int

const (
	CauseUserEnvCall TrapCause = iota
	CauseStorePageFault
	CauseLoadPageFault
	CauseInstructionPageFault
	CauseIllegalInstruction
	CauseSupervisorTimer
	CauseSupervisorExternal
)

// classify maps a raw scause encoding to a TrapCause. Bit 63 set marks an
// interrupt rather than an exception, matching the RISC-V privileged
// spec's scause encoding.
func classify(scause uint64) TrapCause {
	const interruptBit = uint64(1) << 63
	if scause&interruptBit != 0 {
		switch scause &^ interruptBit {
		case 5:
			return CauseSupervisorTimer
		default:
			return CauseSupervisorExternal
		}
	}
	switch scause {
	case 8:
		return CauseUserEnvCall
	case 15:
		return CauseStorePageFault
	case 13:
		return CauseLoadPageFault
	case 12:
		return CauseInstructionPageFault
	default:
		return CauseIllegalInstruction
	}
}

// rawCause packs a TrapCause back into an scause-shaped value, the inverse
// of classify, used by the Ecall/Fault/Preempt front doors below to drive
// handleTrap exactly the way the assembly trampoline would: by populating
// TrapContext.Scause before calling into trap dispatch.
func rawCause(c TrapCause) uint64 {
	const interruptBit = uint64(1) << 63
	switch c {
	case CauseUserEnvCall:
		return 8
	case CauseStorePageFault:
		return 15
	case CauseLoadPageFault:
		return 13
	case CauseInstructionPageFault:
		return 12
	case CauseSupervisorTimer:
		return interruptBit | 5
	case CauseSupervisorExternal:
		return interruptBit | 9
	default:
		return 2 // illegal instruction
	}
}

// Ecall is simulated user-mode code's front door into the kernel,
// standing in for the trampoline's save-registers-and-ecall sequence: a
// TaskEntry closure
// calls this instead of touching kernel state directly, so a syscall made
// through it exercises trap dispatch and the syscall registry. Some tests
// also call kernel methods such as Exit and Fork directly.
func (k *Kernel) Ecall(task *Task, sysno int, args [6]uint64) int64 {
	cx := task.res.TrapCx
	cx.Scause = rawCause(CauseUserEnvCall)
	cx.X[17] = uint64(sysno)
	copy(cx.X[10:16], args[:])
	k.handleTrap(task.onHart, task)
	return int64(cx.X[10])
}

// RaiseFault simulates a hardware fault trap (store/load/instruction
// page fault, or an illegal instruction) arriving while task runs in
// user mode, for tests exercising the kill-the-faulting-task path
// without a real faulting instruction stream.
func (k *Kernel) RaiseFault(task *Task, cause TrapCause) {
	cx := task.res.TrapCx
	cx.Scause = rawCause(cause)
	k.handleTrap(task.onHart, task)
}

// Preempt simulates the supervisor timer interrupt firing while task runs
// in user mode: advances the clock and
// suspends the task back onto the ready queue, the only preemption source
// in this kernel.
func (k *Kernel) Preempt(task *Task) {
	cx := task.res.TrapCx
	cx.Scause = rawCause(CauseSupervisorTimer)
	k.handleTrap(task.onHart, task)
}

// handleTrap is the trap dispatch table: a syscall steps the epc past
// ecall and dispatches through the syscall table; a page fault or
// illegal instruction kills the current task; a timer interrupt resets
// the next trigger and yields; an external interrupt is handed to the
// IRQ manager.
func (k *Kernel) handleTrap(p *Processor, task *Task) {
	cx := task.res.TrapCx
	switch classify(cx.Scause) {
	case CauseUserEnvCall:
		cx.Sepc += 4
		id := int(cx.X[17]) // a7
		args := [6]uint64{cx.X[10], cx.X[11], cx.X[12], cx.X[13], cx.X[14], cx.X[15]}
		ret := k.dispatchSyscall(task, id, args)
		cx.X[10] = uint64(ret)
	case CauseStorePageFault, CauseLoadPageFault, CauseInstructionPageFault:
		if faultLogLimiter.Allow() {
			log.WithFields(map[string]interface{}{"task": task.id, "scause": cx.Scause}).
				Warn("kernel: fatal page fault, killing task")
		}
		k.exitCurrentAndRunNext(p, -2)
	case CauseIllegalInstruction:
		if faultLogLimiter.Allow() {
			log.WithFields(map[string]interface{}{"task": task.id, "scause": cx.Scause}).
				Warn("kernel: illegal instruction, killing task")
		}
		k.exitCurrentAndRunNext(p, -3)
	case CauseSupervisorTimer:
		k.clock.setNextTrigger()
		k.suspendCurrentAndRunNext(p)
	case CauseSupervisorExternal:
		k.irq.HandlerExt(p, p.ID, k.ready, k.notifyWork)
	}
}
