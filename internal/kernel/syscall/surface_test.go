package syscall

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rv64core/kcore/internal/fs"
	"github.com/rv64core/kcore/internal/kernel"
)

// TestScenarioWait4ChildStatus drives fork + wait4 purely through the
// syscall surface: the child exits 5, the parent's wait4 returns the
// child's pid and a wait status with the exit code in bits 8-15.
func TestScenarioWait4ChildStatus(t *testing.T) {
	k, _ := newScenarioKernel(t)

	const statusAddr = 0x6000
	done := make(chan struct{})

	var forked int32
	entry := func(k *kernel.Kernel, task *kernel.Task) {
		if atomic.CompareAndSwapInt32(&forked, 0, 1) {
			childPID := k.Ecall(task, int(SysFork), [6]uint64{})
			require.Greater(t, childPID, int64(0))

			got := k.Ecall(task, int(SysWaitPID), [6]uint64{uint64(0xFFFFFFFFFFFFFFFF), statusAddr})
			require.Equal(t, childPID, got)

			buf, err := task.Process().AddressSpace().TranslatedBytes(statusAddr, 4)
			require.NoError(t, err)
			status := int(buf[0]) | int(buf[1])<<8
			require.Equal(t, 5, status>>8)
			require.Zero(t, status&0xff, "low byte zero means exited, not signaled")

			close(done)
			k.Exit(task, 0)
			return
		}
		k.Ecall(task, int(SysExit), [6]uint64{5})
	}

	k.SpawnInitProcess(fakeUart{}, nil, newSpace(), entry)
	<-done
}

// TestScenarioWait4NoChild checks that wait4 with no children fails
// immediately with -ECHILD instead of blocking.
func TestScenarioWait4NoChild(t *testing.T) {
	k, _ := newScenarioKernel(t)

	done := make(chan int64, 1)
	entry := func(k *kernel.Kernel, task *kernel.Task) {
		done <- k.Ecall(task, int(SysWaitPID), [6]uint64{uint64(0xFFFFFFFFFFFFFFFF), 0})
		k.Exit(task, 0)
	}

	k.SpawnInitProcess(fakeUart{}, nil, newSpace(), entry)
	require.Equal(t, int64(-10), <-done)
}

// TestScenarioUnameGetpid checks the identity syscalls: uname's sysname
// field and getpid/getppid for the init process.
func TestScenarioUnameGetpid(t *testing.T) {
	k, _ := newScenarioKernel(t)

	const utsAddr = 0x7000
	done := make(chan struct{})

	entry := func(k *kernel.Kernel, task *kernel.Task) {
		require.Equal(t, int64(0), k.Ecall(task, int(SysUname), [6]uint64{utsAddr}))
		buf, err := task.Process().AddressSpace().TranslatedBytes(utsAddr, 16)
		require.NoError(t, err)
		end := 0
		for buf[end] != 0 {
			end++
		}
		require.Equal(t, "kcore", string(buf[:end]))

		require.Greater(t, k.Ecall(task, int(SysGetPID), [6]uint64{}), int64(0))
		// Init has no parent.
		require.Equal(t, int64(-1), k.Ecall(task, int(SysGetPPID), [6]uint64{}))

		close(done)
		k.Exit(task, 0)
	}

	k.SpawnInitProcess(fakeUart{}, nil, newSpace(), entry)
	<-done
}

// TestScenarioBrkMmap checks the data-segment syscalls: brk(0) queries,
// brk(addr) grows, mmap grows the segment over [start,start+len), seeks
// the backing fd to off and reads the file contents into the region, and
// munmap accepts.
func TestScenarioBrkMmap(t *testing.T) {
	k, _ := newScenarioKernel(t)

	const pathAddr = 0xB000
	const fileBufAddr = 0xB100
	const mapAddr = 0x3000
	done := make(chan struct{})

	entry := func(k *kernel.Kernel, task *kernel.Task) {
		space := task.Process().AddressSpace()

		base := k.Ecall(task, int(SysBrk), [6]uint64{0})
		require.Equal(t, int64(0x1000), base)

		grown := k.Ecall(task, int(SysBrk), [6]uint64{0x2000})
		require.Equal(t, int64(0x2000), grown)

		// mmap with a bad fd fails before touching the segment.
		require.Equal(t, int64(-9), k.Ecall(task, int(SysMmap), [6]uint64{mapAddr, 8, 0, 0, 99, 0}))

		putCString(t, space, pathAddr, "mfile")
		fd := k.Ecall(task, int(SysOpen), [6]uint64{0, pathAddr, uint64(fs.OCREATE | fs.ORDWR)})
		require.GreaterOrEqual(t, fd, int64(0))
		wbuf, err := space.TranslatedBytes(fileBufAddr, 16)
		require.NoError(t, err)
		copy(wbuf, "ABCDEFGH01234567")
		require.Equal(t, int64(16), k.Ecall(task, int(SysWrite), [6]uint64{uint64(fd), fileBufAddr, 16}))

		got := k.Ecall(task, int(SysMmap), [6]uint64{mapAddr, 8, 0, 0, uint64(fd), 4})
		require.Equal(t, int64(mapAddr), got)
		mapped, err := space.TranslatedBytes(mapAddr, 8)
		require.NoError(t, err)
		require.Equal(t, "EFGH0123", string(mapped))

		require.Equal(t, int64(0), k.Ecall(task, int(SysMunmap), [6]uint64{mapAddr, 8}))

		close(done)
		k.Exit(task, 0)
	}

	k.SpawnInitProcess(fakeUart{}, nil, newSpace(), entry)
	<-done
}

// TestScenarioDupSharesFile checks dup/dup3: both descriptors reach the
// same underlying open file, and fstat through either reports the bytes
// written through the other.
func TestScenarioDupSharesFile(t *testing.T) {
	k, _ := newScenarioKernel(t)

	const pathAddr = 0x8000
	const bufAddr = 0x8100
	const statAddr = 0x8200
	done := make(chan struct{})

	entry := func(k *kernel.Kernel, task *kernel.Task) {
		space := task.Process().AddressSpace()
		putCString(t, space, pathAddr, "dupfile")

		fd := k.Ecall(task, int(SysOpen), [6]uint64{0, pathAddr, uint64(fs.OCREATE | fs.ORDWR)})
		require.GreaterOrEqual(t, fd, int64(0))

		dup := k.Ecall(task, int(SysDup), [6]uint64{uint64(fd)})
		require.Greater(t, dup, fd)

		wbuf, err := space.TranslatedBytes(bufAddr, 3)
		require.NoError(t, err)
		copy(wbuf, "abc")
		require.Equal(t, int64(3), k.Ecall(task, int(SysWrite), [6]uint64{uint64(fd), bufAddr, 3}))

		require.Equal(t, int64(0), k.Ecall(task, int(SysFstat), [6]uint64{uint64(dup), statAddr}))
		st, err := space.TranslatedBytes(statAddr, 32)
		require.NoError(t, err)
		size := int64(st[24]) | int64(st[25])<<8
		require.Equal(t, int64(3), size)

		const newfd = 9
		got := k.Ecall(task, int(SysDup3), [6]uint64{uint64(fd), newfd})
		require.Equal(t, int64(newfd), got)
		require.Equal(t, int64(0), k.Ecall(task, int(SysClose), [6]uint64{newfd}))

		close(done)
		k.Exit(task, 0)
	}

	k.SpawnInitProcess(fakeUart{}, nil, newSpace(), entry)
	<-done
}

// TestScenarioGetdentsListsRoot checks getdents64's record encoding
// against the flat root directory.
func TestScenarioGetdentsListsRoot(t *testing.T) {
	k, _ := newScenarioKernel(t)

	const pathAddr = 0x9000
	const dentAddr = 0x9100
	done := make(chan struct{})

	entry := func(k *kernel.Kernel, task *kernel.Task) {
		space := task.Process().AddressSpace()
		putCString(t, space, pathAddr, "solo")

		fd := k.Ecall(task, int(SysOpen), [6]uint64{0, pathAddr, uint64(fs.OCREATE | fs.ORDWR)})
		require.GreaterOrEqual(t, fd, int64(0))

		n := k.Ecall(task, int(SysGetdents), [6]uint64{uint64(fd), dentAddr, 64})
		require.Equal(t, int64(1), n)

		rec, err := space.TranslatedBytes(dentAddr, direntRecordSize)
		require.NoError(t, err)
		end := 17
		for end < direntRecordSize && rec[end] != 0 {
			end++
		}
		require.Equal(t, "/solo", string(rec[17:end]))

		close(done)
		k.Exit(task, 0)
	}

	k.SpawnInitProcess(fakeUart{}, nil, newSpace(), entry)
	<-done
}

// TestScenarioNanosleepWaitsForTicks checks that nanosleep measures time
// in timer ticks: a second thread stands in for the timer interrupt
// source, preempting itself to advance the clock while the sleeper waits.
func TestScenarioNanosleepWaitsForTicks(t *testing.T) {
	k, _ := newScenarioKernel(t)

	const reqAddr = 0xA000
	const tickerKey = uintptr(0x300)
	done := make(chan int64, 1)

	ticker := kernel.TaskEntry(func(k *kernel.Kernel, task *kernel.Task) {
		for i := 0; i < 10; i++ {
			k.Preempt(task)
		}
		k.Exit(task, 0)
	})

	entry := func(k *kernel.Kernel, task *kernel.Task) {
		space := task.Process().AddressSpace()
		req, err := space.TranslatedBytes(reqAddr, 16)
		require.NoError(t, err)
		// 20ms: two ticks at 100 ticks/sec.
		putU64LE(req[0:8], 0)
		putU64LE(req[8:16], 20_000_000)

		task.Process().RegisterEntry(tickerKey, ticker)
		tid := k.Ecall(task, int(SysThreadCreate), [6]uint64{uint64(tickerKey), 0})
		require.Greater(t, tid, int64(0))

		before := k.Clock().Ticks()
		require.Equal(t, int64(0), k.Ecall(task, int(SysSleep), [6]uint64{reqAddr}))
		done <- k.Clock().Ticks() - before

		k.Ecall(task, int(SysWaitTID), [6]uint64{uint64(tid)})
		k.Exit(task, 0)
	}

	k.SpawnInitProcess(fakeUart{}, nil, newSpace(), entry)

	select {
	case elapsed := <-done:
		require.GreaterOrEqual(t, elapsed, int64(2))
	case <-time.After(5 * time.Second):
		t.Fatal("nanosleep never returned")
	}
}
