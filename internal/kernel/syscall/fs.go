package syscall

import (
	"path"

	"github.com/rv64core/kcore/internal/fs"
	"github.com/rv64core/kcore/internal/kernel"
)

func init() {
	kernel.RegisterSyscall(SysGetCwd, sysGetCwd)
	kernel.RegisterSyscall(SysDup, sysDup)
	kernel.RegisterSyscall(SysDup3, sysDup3)
	kernel.RegisterSyscall(SysMkdir, sysMkdir)
	kernel.RegisterSyscall(SysUnlink, sysUnlink)
	kernel.RegisterSyscall(SysUmount, sysUmount)
	kernel.RegisterSyscall(SysMount, sysMount)
	kernel.RegisterSyscall(SysChdir, sysChdir)
	kernel.RegisterSyscall(SysOpen, sysOpen)
	kernel.RegisterSyscall(SysClose, sysClose)
	kernel.RegisterSyscall(SysPipe, sysPipe)
	kernel.RegisterSyscall(SysGetdents, sysGetdents)
	kernel.RegisterSyscall(SysRead, sysRead)
	kernel.RegisterSyscall(SysWrite, sysWrite)
	kernel.RegisterSyscall(SysFstat, sysFstat)
}

func sysGetCwd(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	cwd := proc.Cwd()
	buf, err := proc.AddressSpace().TranslatedBytes(uintptr(args[0]), int(args[1]))
	if err != nil || len(buf) < len(cwd)+1 {
		return -14 // -EFAULT
	}
	copy(buf, cwd)
	buf[len(cwd)] = 0
	return int64(args[0])
}

func sysDup(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	f, err := proc.FD(int(args[0]))
	if err != nil {
		return -9 // -EBADF
	}
	return int64(proc.AllocFD(f))
}

func sysDup3(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	f, err := proc.FD(int(args[0]))
	if err != nil {
		return -9
	}
	proc.InstallFD(int(args[1]), f)
	return int64(args[1])
}

func sysMkdir(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	name, err := t.Process().AddressSpace().TranslatedStr(uintptr(args[1]))
	if err != nil {
		return -14
	}
	if err := k.RootDir().Mkdir(path.Clean("/" + name)); err != nil {
		return -17 // -EEXIST
	}
	return 0
}

func sysUnlink(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	name, err := t.Process().AddressSpace().TranslatedStr(uintptr(args[1]))
	if err != nil {
		return -14
	}
	if err := k.RootDir().Remove(path.Clean("/" + name)); err != nil {
		return -2 // -ENOENT
	}
	return 0
}

// sysUmount and sysMount are no-ops: this kernel's single flat root
// directory has nothing to mount over, but the syscall numbers are still
// wired so a caller exercising the full surface doesn't trip the
// unimplemented-syscall panic.
func sysUmount(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 { return 0 }
func sysMount(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64  { return 0 }

func sysChdir(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	name, err := proc.AddressSpace().TranslatedStr(uintptr(args[0]))
	if err != nil {
		return -14
	}
	target := path.Clean("/" + name)
	if err := k.RootDir().ValidateDir(target); err != nil {
		return -20 // -ENOTDIR
	}
	proc.SetCwd(target)
	return 0
}

func sysOpen(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	name, err := proc.AddressSpace().TranslatedStr(uintptr(args[1]))
	if err != nil {
		return -14
	}
	inode, err := k.RootDir().Open(path.Clean("/"+name), fs.OpenFlags(args[2]))
	if err != nil {
		return -2
	}
	return int64(proc.AllocFD(inode))
}

func sysClose(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	if err := t.Process().CloseFD(int(args[0])); err != nil {
		return -9
	}
	return 0
}

func sysPipe(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	r, w := fs.NewPipe()
	rfd := proc.AllocFD(r)
	wfd := proc.AllocFD(w)
	out, err := proc.AddressSpace().TranslatedBytes(uintptr(args[0]), 8)
	if err != nil {
		return -14
	}
	byteOrderPutInt32(out[0:4], int32(rfd))
	byteOrderPutInt32(out[4:8], int32(wfd))
	return 0
}

func byteOrderPutInt32(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// direntRecordSize is this simulator's fixed getdents64 record layout:
// Ino(8) + Off(8) + Type(1) + 15 bytes of NUL-padded/truncated name.
const direntRecordSize = 32

func sysGetdents(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	f, err := proc.FD(int(args[0]))
	if err != nil {
		return -9
	}
	count := int(args[2]) / direntRecordSize
	dirents := make([]fs.Dirent, count)
	n, err := f.Getdents(dirents)
	if err != nil {
		return -5 // -EIO
	}
	out, err := proc.AddressSpace().TranslatedBytes(uintptr(args[1]), n*direntRecordSize)
	if err != nil {
		return -14
	}
	for i := 0; i < n; i++ {
		rec := out[i*direntRecordSize : (i+1)*direntRecordSize]
		putU64LE(rec[0:8], dirents[i].Ino)
		putU64LE(rec[8:16], uint64(dirents[i].Off))
		rec[16] = dirents[i].Type
		nameLen := copy(rec[17:32], dirents[i].Name)
		if nameLen < 15 {
			rec[17+nameLen] = 0
		}
	}
	return int64(n)
}

func sysRead(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	f, err := proc.FD(int(args[0]))
	if err != nil {
		return -9
	}
	buf, err := proc.AddressSpace().TranslatedBytes(uintptr(args[1]), int(args[2]))
	if err != nil {
		return -14
	}
	n, err := f.Read(fs.UserBuffer{Bytes: buf})
	if err != nil {
		return -5
	}
	return int64(n)
}

func sysWrite(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	f, err := proc.FD(int(args[0]))
	if err != nil {
		return -9
	}
	buf, err := proc.AddressSpace().TranslatedBytes(uintptr(args[1]), int(args[2]))
	if err != nil {
		return -14
	}
	n, err := f.Write(fs.UserBuffer{Bytes: buf})
	if err != nil {
		return -5
	}
	return int64(n)
}

func sysFstat(k *kernel.Kernel, t *kernel.Task, args [6]uint64) int64 {
	proc := t.Process()
	f, err := proc.FD(int(args[0]))
	if err != nil {
		return -9
	}
	var st fs.Kstat
	if err := f.Stat(&st); err != nil {
		return -5
	}
	out, err := proc.AddressSpace().TranslatedBytes(uintptr(args[1]), 64)
	if err != nil {
		return -14
	}
	encodeKstat(out, &st)
	return 0
}

func encodeKstat(out []byte, st *fs.Kstat) {
	putU64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			out[off+i] = byte(v >> (8 * i))
		}
	}
	putU64(0, st.Dev)
	putU64(8, st.Ino)
	putU64(16, uint64(st.Mode))
	putU64(24, uint64(st.Size))
}
