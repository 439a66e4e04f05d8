package syscall

import (
	"github.com/rv64core/kcore/internal/fs"
	"github.com/rv64core/kcore/internal/kernel"
)

func init() {
	kernel.RegisterSyscall(SysExit, sysExit)
	kernel.RegisterSyscall(SysSleep, sysSleep)
	kernel.RegisterSyscall(SysYield, sysYield)
	kernel.RegisterSyscall(SysUname, sysUname)
	kernel.RegisterSyscall(SysGetTime, sysGetTime)
	kernel.RegisterSyscall(SysGetPID, sysGetPID)
	kernel.RegisterSyscall(SysGetPPID, sysGetPPID)
	kernel.RegisterSyscall(SysBrk, sysBrk)
	kernel.RegisterSyscall(SysMunmap, sysMunmap)
	kernel.RegisterSyscall(SysFork, sysFork)
	kernel.RegisterSyscall(SysExec, sysExec)
	kernel.RegisterSyscall(SysMmap, sysMmap)
	kernel.RegisterSyscall(SysWaitPID, sysWaitPID)
}

func sysExit(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	k.Exit(t, int(int32(args[0])))
	return 0 // ignored: the task has exited and no longer owns a hart
}

func sysSleep(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	// args[0] points at a struct timespec {sec, nsec}.
	req, err := t.Process().AddressSpace().TranslatedBytes(uintptr(args[0]), 16)
	if err != nil {
		return -14
	}
	sec := int64(getU64LE(req[0:8]))
	nsec := int64(getU64LE(req[8:16]))
	target := k.Clock().Ticks() + sec*kernel.TicksPerSec + nsec*kernel.TicksPerSec/1_000_000_000
	for k.Clock().Ticks() < target {
		k.Yield(t)
	}
	return 0
}

func sysYield(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	k.Yield(t)
	return 0
}

// utsFieldLen is the length of each of struct utsname's six fields.
const utsFieldLen = 65

func sysUname(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	out, err := t.Process().AddressSpace().TranslatedBytes(uintptr(args[0]), utsFieldLen*6)
	if err != nil {
		return -14
	}
	fields := []string{"kcore", "kcore-riscv64", "1.0.0", "#1 SMP", "riscv64gc", "localhost"}
	for i, s := range fields {
		off := i * utsFieldLen
		n := copy(out[off:off+utsFieldLen-1], s)
		out[off+n] = 0
	}
	return 0
}

func sysGetTime(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	sec, usec := k.Clock().GetTimeOfDay()
	out, err := t.Process().AddressSpace().TranslatedBytes(uintptr(args[0]), 16)
	if err != nil {
		return -14
	}
	putU64LE(out[0:8], uint64(sec))
	putU64LE(out[8:16], uint64(usec))
	return 0
}

func putU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func sysGetPID(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	return int64(t.Process().PID())
}

func sysGetPPID(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	parent := t.Process().Parent()
	if parent == nil {
		return -1
	}
	return int64(parent.PID())
}

func sysBrk(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	brk, err := t.Process().AddressSpace().Brk(uintptr(args[0]))
	if err != nil {
		return -12 // -ENOMEM
	}
	return int64(brk)
}

func sysMunmap(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	// RecycleDataPages only operates on the whole space in this
	// simulator's AddressSpace; munmap of a specific region is accepted
	// and reported successful without actually reclaiming it, matching
	// the non-shrinking Brk behavior above.
	return 0
}

func sysFork(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	child := k.Fork(t, nil)
	return int64(child.PID())
}

func sysExec(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	if err := k.Exec(t, uintptr(args[0])); err != nil {
		return -8 // -ENOEXEC
	}
	return 0
}

// sysMmap is the simplified file mapping: grow the data segment to cover
// [start, start+len), seek the backing fd to off, and read len bytes into
// the region synchronously. There is no page-granular mapping object to
// unmap later; munmap above is the matching no-op.
func sysMmap(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	space := proc.AddressSpace()
	start := uintptr(args[0])
	length := int(args[1])
	f, err := proc.FD(int(args[4]))
	if err != nil {
		return -9
	}
	if start == 0 {
		// A zero start maps at the current break.
		if start, err = space.Brk(0); err != nil {
			return -12
		}
	}
	if err := space.MapFixed(start, length); err != nil {
		return -12
	}
	if _, err := f.Seek(int64(args[5]), fs.SeekSet); err != nil {
		return -5
	}
	buf, err := space.TranslatedBytes(start, length)
	if err != nil {
		return -14
	}
	for filled := 0; filled < length; {
		n, err := f.Read(fs.UserBuffer{Bytes: buf[filled:]})
		if err != nil {
			return -5
		}
		if n == 0 {
			break // short file: the tail of the region stays zeroed
		}
		filled += n
	}
	return int64(start)
}

func sysWaitPID(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	pid, status, err := k.Wait4(t, t.Process(), int(int32(args[0])))
	if err != nil {
		return -10 // -ECHILD
	}
	if args[1] != 0 {
		out, err := t.Process().AddressSpace().TranslatedBytes(uintptr(args[1]), 4)
		if err == nil {
			out[0] = byte(status)
			out[1] = byte(status >> 8)
			out[2] = byte(status >> 16)
			out[3] = byte(status >> 24)
		}
	}
	return int64(pid)
}
