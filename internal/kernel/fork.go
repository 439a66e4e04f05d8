package kernel

import (
	"fmt"

	"github.com/rv64core/kcore/internal/fs"
	"github.com/rv64core/kcore/internal/mm"
)

// TaskEntry is the user-mode body a newly created task executes, given
// the TrapContext it should treat as the saved user registers. Real user
// code would be loaded from an ELF image; this simulator has no binary
// loader, so callers supply the entry behavior directly as a Go closure
// standing in for "the instructions at the loaded entry point", letting
// tests exercise the same fork/exec/wait machinery without one.
type TaskEntry func(k *Kernel, task *Task)

// SpawnInitProcess is the last boot step: allocate pid 1, a fresh
// address space, stdin/stdout backed by uart, and a single initial task
// running entry.
func (k *Kernel) SpawnInitProcess(uart fs.UartDevice, root *fs.Directory, space mm.AddressSpace, entry TaskEntry) *Process {
	k.acquireTaskSlot()
	pid := k.newProcessID()
	proc := newProcess(pid, nil, space)
	k.registerProcess(proc)

	proc.entry = entry
	task := newTask(0, proc) // main task is always tid 0
	proc.tasks = append(proc.tasks, task)
	k.installStdio(proc, task, uart)

	go task.run(func(t *Task) { entry(k, t) })
	task.setStatus(TaskReady)
	k.ready.PushBack(k.anyProcessor(), task)
	k.notifyWork()
	k.initProc = proc
	return proc
}

// installStdio wires fd 0/1/2 to Stdin/Stdout/Stdout, giving the Stdin
// its own taskIRQWaiter bound to this task (see irq.go).
func (k *Kernel) installStdio(proc *Process, task *Task, uart fs.UartDevice) {
	stdin := fs.Stdin{UART: uart, Waiter: taskIRQWaiter{k: k, task: task}, UARTIRQ: IRQUART}
	stdout := fs.Stdout{UART: uart}
	proc.AllocFD(stdin)
	proc.AllocFD(stdout)
	proc.AllocFD(stdout) // fd 2, stderr aliases stdout in this simulator
}

// anyProcessor returns an arbitrary booted processor, used only for the
// IrqSafeSpinlock calls PushBack needs before the newly spawned task has
// ever actually run on one; any processor's lock instance guards the
// same ready queue so which one is passed doesn't affect correctness.
func (k *Kernel) anyProcessor() *Processor {
	if len(k.procsByHart) == 0 {
		panic("kernel: no processors booted")
	}
	return k.procsByHart[0]
}

// Fork clones the calling task's owning process (address space and fd
// table) and spins up a single task in the child running entry. Unix
// fork returns twice into one instruction stream; here that is modeled
// as the parent continuing past the syscall and a new task goroutine
// starting at entry. A nil entry
// reuses the parent process's own entry (the ordinary sys_fork case: the
// child keeps running the same program, just past the fork call).
func (k *Kernel) Fork(parent *Task, entry TaskEntry) *Process {
	if entry == nil {
		entry = parent.proc.entry
	}
	k.acquireTaskSlot()
	childPID := k.newProcessID()
	child := parent.proc.fork(childPID)
	child.entry = entry
	k.registerProcess(child)

	childTask := newTask(0, child) // main task is always tid 0
	child.tasks = append(child.tasks, childTask)

	// The child's trap frame is the parent's with a0 forced to 0, so
	// fork observably returns 0 in the child.
	*childTask.res.TrapCx = *parent.res.TrapCx
	childTask.res.TrapCx.X[10] = 0

	go childTask.run(func(t *Task) { entry(k, t) })
	childTask.setStatus(TaskReady)
	k.ready.PushBack(parent.onHart, childTask)
	k.notifyWork()
	return child
}

// Exit is the exit path for a syscall handler: exitCurrentAndRunNext
// marks the task a zombie and hands the hart off to whatever runs next,
// after which Exit returns to its caller on this task's goroutine, which
// then unwinds out of Task.run. Code after Exit still runs, but the task
// no longer owns a hart; callers must not rely on any return value.
func (k *Kernel) Exit(task *Task, exitCode int) {
	k.exitCurrentAndRunNext(task.onHart, exitCode)
}

// Yield implements sched_yield.
func (k *Kernel) Yield(task *Task) {
	k.suspendCurrentAndRunNext(task.onHart)
}

// Exec implements execve, restricted to the entries a test registered
// via Process.RegisterEntry (see TaskEntry's doc comment): it
// replaces the calling process's entry and address-space contents,
// keeping the pid and fd table (matching real execve's semantics), and
// runs the new entry in place on the calling task's own goroutine; the
// same goroutine the caller's remaining (now-replaced) instructions
// would otherwise have continued on, which real execve never returns
// into either.
func (k *Kernel) Exec(task *Task, entryKey uintptr) error {
	entry, ok := task.proc.lookupEntry(entryKey)
	if !ok {
		return fmt.Errorf("kernel: exec: unregistered entry %#x", entryKey)
	}
	task.proc.entry = entry
	task.proc.space.RecycleDataPages()
	entry(k, task)
	return nil
}

// Wait4 implements wait4. This simulator has no dedicated child-exit
// wait queue, so it repeatedly yields the calling task until the named
// child (or any child if pid <= 0) becomes a zombie, then reaps it and
// returns its pid and exit status encoded as (exit_code & 0xff) << 8.
func (k *Kernel) Wait4(waiter *Task, parent *Process, pid int) (childPID int, status int, err error) {
	for {
		parent.mu.Lock()
		var found *Process
		for _, c := range parent.children {
			if pid > 0 && c.pid != pid {
				continue
			}
			if c.isZombie() {
				found = c
				break
			}
		}
		hasAny := pid <= 0 && len(parent.children) > 0
		hasNamed := pid > 0 && func() bool {
			for _, c := range parent.children {
				if c.pid == pid {
					return true
				}
			}
			return false
		}()
		parent.mu.Unlock()

		if found != nil {
			parent.reapChild(found)
			k.unregisterProcess(found.pid)
			status = int(EncodeExitStatus(found.ExitCode()))
			return found.pid, status, nil
		}
		if !hasAny && !hasNamed {
			return 0, 0, ErrNoSuchChild
		}
		k.suspendCurrentAndRunNext(waiter.onHart)
	}
}
