package kernel

import (
	"sync"

	"github.com/rv64core/kcore/internal/fs"
	"github.com/rv64core/kcore/internal/mm"
)

// Process is the address-space-and-resources owner a Task runs inside:
// pid, parent, children, address space, fd table, exit code. The
// lightweight thread-of-control (Task) and the heavier resource owner
// (Process) are kept separate so threads can share everything but their
// kernel stack and trap context.
type Process struct {
	mu       sync.Mutex
	pid      int
	parent   *Process
	children []*Process
	space    mm.AddressSpace
	fds      []fs.File
	exitCode int
	zombie   bool
	tasks    []*Task
	cwd      string

	// threadEntries maps a simulated function-pointer value to the Go
	// closure it denotes, so sys_thread_create/sys_exec, which on real
	// hardware receive a raw code address, can be driven without an ELF
	// loader. A test registers the closures it wants reachable via
	// RegisterEntry before issuing the syscall.
	threadEntries map[uintptr]TaskEntry
	nextTID       int
	mutexes       []*procMutex
	semaphores    []*procSem

	// entry is the closure the process's main task runs; fork() reuses
	// it for the child (standing in for "fork returns twice into the
	// same instruction stream"), and exec replaces it.
	entry TaskEntry
}

// RegisterEntry associates key with entry, making it a valid argument to
// the thread_create/exec syscalls for this process.
func (p *Process) RegisterEntry(key uintptr, entry TaskEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.threadEntries == nil {
		p.threadEntries = make(map[uintptr]TaskEntry)
	}
	p.threadEntries[key] = entry
}

func (p *Process) lookupEntry(key uintptr) (TaskEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.threadEntries[key]
	return e, ok
}

// newProcess allocates a Process with a fresh address space and the
// standard fd 0/1/2 slots populated by the caller (kernel construction
// wires concrete fs.Stdin/fs.Stdout there, since only it knows the UART
// device).
func newProcess(pid int, parent *Process, space mm.AddressSpace) *Process {
	return &Process{
		pid:    pid,
		parent: parent,
		space:  space,
		fds:    make([]fs.File, 0, 8),
		cwd:    "/",
	}
}

func (p *Process) PID() int { return p.pid }

func (p *Process) Parent() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Process, len(p.children))
	copy(out, p.children)
	return out
}

func (p *Process) AddressSpace() mm.AddressSpace { return p.space }

func (p *Process) Cwd() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

func (p *Process) SetCwd(path string) {
	p.mu.Lock()
	p.cwd = path
	p.mu.Unlock()
}

// AllocFD installs f at the lowest free descriptor, the dup/openat
// allocation rule.
func (p *Process) AllocFD(f fs.File) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, slot := range p.fds {
		if slot == nil {
			p.fds[i] = f
			return i
		}
	}
	p.fds = append(p.fds, f)
	return len(p.fds) - 1
}

// InstallFD installs f at exactly fd, growing the table if needed
// (dup3: close newfd first, then install there).
func (p *Process) InstallFD(fd int, f fs.File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.fds) <= fd {
		p.fds = append(p.fds, nil)
	}
	p.fds[fd] = f
}

func (p *Process) FD(fd int) (fs.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd < 0 || fd >= len(p.fds) || p.fds[fd] == nil {
		return nil, ErrBadFD
	}
	return p.fds[fd], nil
}

func (p *Process) CloseFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd < 0 || fd >= len(p.fds) || p.fds[fd] == nil {
		return ErrBadFD
	}
	p.fds[fd] = nil
	return nil
}

// fork clones the fd table (shared File values: dup'd descriptors share
// an underlying open file) and address
// space (copy-on-write is not modeled; mm.AddressSpace.Fork does a full
// deep copy) into a new child Process.
func (p *Process) fork(childPID int) *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	child := newProcess(childPID, p, p.space.Fork())
	child.fds = make([]fs.File, len(p.fds))
	copy(child.fds, p.fds)
	child.cwd = p.cwd
	child.entry = p.entry
	p.children = append(p.children, child)
	return child
}

// reapChild removes child from p's children list once wait4 has
// collected its exit status.
func (p *Process) reapChild(child *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.children {
		if c == child {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}

func (p *Process) markZombie(exitCode int) {
	p.mu.Lock()
	p.zombie = true
	p.exitCode = exitCode
	p.mu.Unlock()
}

// reparentChildren moves every child of p onto init, so an exiting
// middle process never strands grandchildren. A no-op for init itself
// (init's own exit during shutdown), since reparenting onto itself
// would change nothing.
func (p *Process) reparentChildren(init *Process) {
	if init == nil || init == p {
		return
	}
	p.mu.Lock()
	orphans := p.children
	p.children = nil
	p.mu.Unlock()

	if len(orphans) == 0 {
		return
	}
	init.mu.Lock()
	for _, c := range orphans {
		c.mu.Lock()
		c.parent = init
		c.mu.Unlock()
	}
	init.children = append(init.children, orphans...)
	init.mu.Unlock()
}

// otherTasks returns every task belonging to p except except, for
// releasing sibling tasks' user resources when the main task exits.
func (p *Process) otherTasks(except *Task) []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		if t != except {
			out = append(out, t)
		}
	}
	return out
}

func (p *Process) isZombie() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zombie
}

// Zombie reports whether p has exited, for callers outside any task's
// context (e.g. a cmd/kcore entrypoint polling its spawned init process)
// that cannot call Kernel.Wait4, which requires a waiting Task.
func (p *Process) Zombie() bool { return p.isZombie() }

func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}
