package kernel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rv64core/kcore/internal/mm"
)

type nullUart struct{}

func (nullUart) GetChar() (byte, bool) { return 0, false }
func (nullUart) PutChar(byte)          {}
func (nullUart) HandlerInterrupt()     {}

// newProcTestKernel boots a single-hart kernel with no filesystem root,
// enough for the fork/wait machinery (which never touches the disk).
func newProcTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k := NewKernel(&fakePlic{}, nil)
	require.NoError(t, k.Boot(context.Background(), 1))
	return k
}

// TestForkSemantics: the parent's
// pid is unchanged across fork, the child's parent is the forking
// process, the fd table matches the parent's at fork time, and memory
// writes after the fork are not visible across the two address spaces.
func TestForkSemantics(t *testing.T) {
	k := newProcTestKernel(t)

	const flagAddr = uintptr(0x2000)
	space := mm.NewFlatSpace(0x1000, 1<<16)

	var forked int32
	childSaw := make(chan byte, 1)
	parentDone := make(chan *Process, 1)

	entry := func(k *Kernel, task *Task) {
		sp := task.Process().AddressSpace()
		if atomic.CompareAndSwapInt32(&forked, 0, 1) {
			buf, err := sp.TranslatedBytes(flagAddr, 1)
			require.NoError(t, err)
			buf[0] = 'P'

			pidBefore := task.Process().PID()
			child := k.Fork(task, nil)

			// Writes after fork must not leak into the child's copy.
			buf[0] = 'Q'

			require.Equal(t, pidBefore, task.Process().PID())
			require.Same(t, task.Process(), child.Parent())
			require.NotEqual(t, pidBefore, child.PID())
			// Child's fd table matches the parent's at fork time.
			require.Len(t, child.fds, len(task.Process().fds))
			// fork returns 0 in the child's a0. Safe to inspect here: on
			// this single hart the child cannot run (and release its trap
			// context) until the parent yields.
			require.Equal(t, uint64(0), child.tasks[0].res.TrapCx.X[10])

			parentDone <- child
			k.Exit(task, 0)
			return
		}
		buf, err := sp.TranslatedBytes(flagAddr, 1)
		require.NoError(t, err)
		childSaw <- buf[0]
		k.Exit(task, 0)
	}

	k.SpawnInitProcess(nullUart{}, nil, space, entry)
	<-parentDone
	require.Equal(t, byte('P'), <-childSaw, "child must see the pre-fork snapshot, not the parent's later write")
}

// TestWaitReclaimsChild: wait
// returns the child's pid with the exit code in bits 8-15, and afterwards
// the kernel holds no reference to the child process.
func TestWaitReclaimsChild(t *testing.T) {
	k := newProcTestKernel(t)

	var forked int32
	done := make(chan struct{})

	entry := func(k *Kernel, task *Task) {
		if atomic.CompareAndSwapInt32(&forked, 0, 1) {
			child := k.Fork(task, nil)

			pid, status, err := k.Wait4(task, task.Process(), child.PID())
			require.NoError(t, err)
			require.Equal(t, child.PID(), pid)
			require.Equal(t, 5, status>>8)

			require.Empty(t, task.Process().Children())
			_, stillThere := k.Process(child.PID())
			require.False(t, stillThere, "reaped child must leave the pid table")

			close(done)
			k.Exit(task, 0)
			return
		}
		k.Exit(task, 5)
	}

	k.SpawnInitProcess(nullUart{}, nil, mm.NewFlatSpace(0x1000, 1<<16), entry)
	<-done
}

// TestWaitNoChildren checks waitpid's first step:
// no matching child means an immediate error, not a block.
func TestWaitNoChildren(t *testing.T) {
	k := newProcTestKernel(t)
	done := make(chan error, 1)

	entry := func(k *Kernel, task *Task) {
		_, _, err := k.Wait4(task, task.Process(), -1)
		done <- err
		k.Exit(task, 0)
	}

	k.SpawnInitProcess(nullUart{}, nil, mm.NewFlatSpace(0x1000, 1<<16), entry)
	require.ErrorIs(t, <-done, ErrNoSuchChild)
}

// TestFaultKillsTask: a page fault kills
// the current task with exit code -2, an illegal instruction with -3, and
// neither panics the kernel.
func TestFaultKillsTask(t *testing.T) {
	for _, tc := range []struct {
		name  string
		cause TrapCause
		code  int
	}{
		{"store page fault", CauseStorePageFault, -2},
		{"load page fault", CauseLoadPageFault, -2},
		{"illegal instruction", CauseIllegalInstruction, -3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := newProcTestKernel(t)
			entry := func(k *Kernel, task *Task) {
				k.RaiseFault(task, tc.cause)
				// Unreachable: RaiseFault tears this task down.
			}
			proc := k.SpawnInitProcess(nullUart{}, nil, mm.NewFlatSpace(0x1000, 1<<16), entry)
			waitFor(t, proc.Zombie)
			require.Equal(t, tc.code, proc.ExitCode())
		})
	}
}

// TestExitReparentsChildrenToInit:
// a dying process's children move onto init.
func TestExitReparentsChildrenToInit(t *testing.T) {
	k := newProcTestKernel(t)

	var stage int32
	var stop atomic.Bool
	grandchildSpawned := make(chan *Process, 1)

	entry := func(k *Kernel, task *Task) {
		switch atomic.AddInt32(&stage, 1) {
		case 1: // init: fork the middle child, then linger.
			k.Fork(task, nil)
			for !stop.Load() {
				k.Yield(task)
			}
			k.Exit(task, 0)
		case 2: // middle: fork a grandchild, then exit without waiting on it.
			gc := k.Fork(task, nil)
			grandchildSpawned <- gc
			k.Exit(task, 0)
		default: // grandchild: linger until the test is done looking.
			for !stop.Load() {
				k.Yield(task)
			}
			k.Exit(task, 0)
		}
	}

	init := k.SpawnInitProcess(nullUart{}, nil, mm.NewFlatSpace(0x1000, 1<<16), entry)
	gc := <-grandchildSpawned
	waitFor(t, func() bool { return gc.Parent() == init })
	stop.Store(true)
}
