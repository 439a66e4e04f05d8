package syscall

import "github.com/rv64core/kcore/internal/kernel"

func init() {
	kernel.RegisterSyscall(SysThreadCreate, sysThreadCreate)
	kernel.RegisterSyscall(SysGetTID, sysGetTID)
	kernel.RegisterSyscall(SysWaitTID, sysWaitTID)
	kernel.RegisterSyscall(SysMutexCreate, sysMutexCreate)
	kernel.RegisterSyscall(SysMutexLock, sysMutexLock)
	kernel.RegisterSyscall(SysMutexUnlock, sysMutexUnlock)
	kernel.RegisterSyscall(SysSemCreate, sysSemCreate)
	kernel.RegisterSyscall(SysSemUp, sysSemUp)
	kernel.RegisterSyscall(SysSemDown, sysSemDown)
}

func sysThreadCreate(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	tid, err := k.ThreadCreate(t, uintptr(args[0]), args[1])
	if err != nil {
		return -22 // -EINVAL
	}
	return int64(tid)
}

func sysGetTID(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	return int64(t.ID())
}

func sysWaitTID(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	code, err := k.WaitTID(t, int(args[0]))
	if err != nil {
		return -10
	}
	return int64(code)
}

func sysMutexCreate(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	return int64(k.MutexCreate(t.Process()))
}

func sysMutexLock(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	if err := k.MutexLock(t, int(args[0])); err != nil {
		return -22
	}
	return 0
}

func sysMutexUnlock(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	if err := k.MutexUnlock(t, int(args[0])); err != nil {
		return -22
	}
	return 0
}

func sysSemCreate(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	return int64(k.SemCreate(t.Process(), int(args[0])))
}

func sysSemUp(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	if err := k.SemUp(t, int(args[0])); err != nil {
		return -22
	}
	return 0
}

func sysSemDown(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	if err := k.SemDown(t, int(args[0])); err != nil {
		return -22
	}
	return 0
}
