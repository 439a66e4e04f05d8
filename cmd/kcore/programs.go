package main

import (
	"fmt"

	"github.com/rv64core/kcore/internal/kernel"
	ksys "github.com/rv64core/kcore/internal/kernel/syscall"
)

// scratchBase is the scratch address every built-in program stages its
// syscall buffers at, matching the convention the scenario tests use for
// their own mm.NewFlatSpace; these programs have no ELF-loaded data
// segment of their own to write into, just this one scratch region.
const scratchBase = 0x1000

// programs is the registry of built-in kernel.TaskEntry bodies cmd/kcore's
// "run" and "wait" subcommands can spawn by name, standing in for "the
// binary named on the command line" in a real kernel's exec path.
var programs = map[string]kernel.TaskEntry{
	"hello": helloEntry,
	"shell": shellEntry,
}

// writeString stages s at scratchBase in task's address space and issues
// a write(2) syscall against fd, the same trap-dispatch path every other
// caller in this repo drives output through.
func writeString(k *kernel.Kernel, task *kernel.Task, fd uint64, s string) int64 {
	buf, err := task.Process().AddressSpace().TranslatedBytes(scratchBase, len(s))
	if err != nil {
		return -14 // -EFAULT
	}
	copy(buf, s)
	return k.Ecall(task, ksys.SysWrite, [6]uint64{fd, scratchBase, uint64(len(s))})
}

// helloEntry writes a greeting to stdout and exits 0, the simplest
// possible program exercising the write/exit syscall pair end to end
// against a real PTYUart.
func helloEntry(k *kernel.Kernel, task *kernel.Task) {
	writeString(k, task, 1, fmt.Sprintf("hello from kcore, pid %d\n", task.Process().PID()))
	k.Ecall(task, ksys.SysExit, [6]uint64{0})
}

// shellEntry echoes stdin back to stdout one byte at a time, blocking on
// the UART IRQ via fs.Stdin.Read/wait_for_irq_and_run_next whenever no
// character is ready, and exits when it reads 'q'; just enough of a
// program to manually drive a live PTY console through the scheduler's
// IRQ-wait path.
func shellEntry(k *kernel.Kernel, task *kernel.Task) {
	space := task.Process().AddressSpace()
	for {
		n := k.Ecall(task, ksys.SysRead, [6]uint64{0, scratchBase, 1})
		if n <= 0 {
			continue
		}
		buf, err := space.TranslatedBytes(scratchBase, 1)
		if err != nil {
			k.Ecall(task, ksys.SysExit, [6]uint64{1})
			return
		}
		c := buf[0]
		writeString(k, task, 1, string(c))
		if c == 'q' {
			k.Ecall(task, ksys.SysExit, [6]uint64{0})
			return
		}
	}
}
