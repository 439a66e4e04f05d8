// Package syscall registers the kernel's full syscall surface
// into a kernel.Kernel's dispatch table via package-level init()s, one
// handler per syscall id. Importing this package for side effects (a
// blank import from cmd/kcore) is what makes a Kernel's ecall traps
// actually do anything; the kernel package itself never imports this
// one, avoiding a dependency cycle.
package syscall

// Syscall numbers. Mostly the Linux riscv64 table; the thread and
// mutex/semaphore calls in the 1000+ range are this kernel's own.
const (
	SysGetCwd        = 17
	SysDup           = 23
	SysDup3          = 24
	SysMkdir         = 34
	SysUnlink        = 35
	SysUmount        = 39
	SysMount         = 40
	SysChdir         = 49
	SysOpen          = 56
	SysClose         = 57
	SysPipe          = 59
	SysGetdents      = 61
	SysRead          = 63
	SysWrite         = 64
	SysFstat         = 80
	SysExit          = 93
	SysSleep         = 101
	SysYield         = 124
	SysUname         = 160
	SysGetTime       = 169
	SysGetPID        = 172
	SysGetPPID       = 173
	SysBrk           = 214
	SysMunmap        = 215
	SysFork          = 220
	SysExec          = 221
	SysMmap          = 222
	SysWaitPID       = 260
	SysThreadCreate  = 1000
	SysGetTID        = 1001
	SysWaitTID       = 1002
	SysMutexCreate   = 1010
	SysMutexLock     = 1011
	SysMutexUnlock   = 1012
	SysSemCreate     = 1020
	SysSemUp         = 1021
	SysSemDown       = 1022
)
