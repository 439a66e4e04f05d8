// Package fs implements the kernel's polymorphic file layer: Stdin,
// Stdout, Pipe, and OSInode, each satisfying the same File interface
// {read, write, seek, stat, name, getdents}. Open, create and remove are
// not part of File; they are methods of Directory.
//
// OSInode is a minimal flat block-indexed store good enough to drive
// open/write/close/open/read flows, not a FAT32 implementation.
package fs

import (
	"fmt"
	"sync"

	"github.com/rv64core/kcore/internal/blockdev"
)

// UserBuffer is a contiguous region of user memory being read into or
// written from by a syscall; callers pass the bytes translated by
// mm.AddressSpace.
type UserBuffer struct {
	Bytes []byte
}

func (u UserBuffer) Len() int { return len(u.Bytes) }

// SeekWhence mirrors the Unix lseek(2) whence values.
type SeekWhence int

const (
	SeekSet SeekWhence = iota
	SeekCur
	SeekEnd
)

// Kstat mirrors the Linux-compatible struct stat laid out in
// asm-generic/stat.h, trimmed to the fields the syscall surface exposes.
type Kstat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Size    int64
	Blksize uint32
	Blocks  uint64
}

// Dirent mirrors the Linux getdents64 record, trimmed to what getdents
// syscalls need to return.
type Dirent struct {
	Ino    uint64
	Off    int64
	Type   uint8
	Name   string
}

// File is the capability set every file-like object in the kernel
// implements; Stdin/Stdout/Pipe/OSInode are its variants.
type File interface {
	Readable() bool
	Writable() bool
	Read(buf UserBuffer) (int, error)
	Write(buf UserBuffer) (int, error)
	Seek(offset int64, whence SeekWhence) (int64, error)
	Stat(out *Kstat) error
	Name() string
	Getdents(out []Dirent) (int, error)
}

// IRQWaiter is the minimal slice of the irq/scheduler core that Stdin
// needs: parking the calling task until the device's completion IRQ
// fires. Defined here (rather than importing the kernel package) so this
// package stays a leaf with no dependency on kernel; kernel constructs
// Stdin/Stdout and supplies itself as the IRQWaiter.
type IRQWaiter interface {
	WaitForIRQ(irq int)
}

// UartDevice is the serial device Stdin/Stdout move bytes through.
type UartDevice interface {
	GetChar() (byte, bool)
	PutChar(b byte)
	HandlerInterrupt()
}

// Stdin blocks the calling task on the UART RX IRQ queue when no
// character is ready, rather than busy-polling: Read loops parking on
// the RX interrupt until GetChar yields a byte.
type Stdin struct {
	UART    UartDevice
	Waiter  IRQWaiter
	UARTIRQ int
}

func (Stdin) Readable() bool { return true }
func (Stdin) Writable() bool { return false }

func (s Stdin) Read(buf UserBuffer) (int, error) {
	if len(buf.Bytes) == 0 {
		return 0, nil
	}
	for {
		if c, ok := s.UART.GetChar(); ok {
			buf.Bytes[0] = c
			return 1, nil
		}
		s.Waiter.WaitForIRQ(s.UARTIRQ)
	}
}

func (Stdin) Write(UserBuffer) (int, error) { return 0, fmt.Errorf("fs: Stdin is not writable") }
func (Stdin) Seek(int64, SeekWhence) (int64, error) {
	return 0, fmt.Errorf("fs: Stdin is not seekable")
}
func (Stdin) Stat(out *Kstat) error { *out = Kstat{Mode: 0o020666}; return nil }
func (Stdin) Name() string          { return "Stdin" }
func (Stdin) Getdents([]Dirent) (int, error) {
	return 0, fmt.Errorf("fs: Stdin is not a directory")
}

// Stdout writes straight through to the UART device.
type Stdout struct {
	UART UartDevice
}

func (Stdout) Readable() bool { return false }
func (Stdout) Writable() bool { return true }
func (Stdout) Read(UserBuffer) (int, error) {
	return 0, fmt.Errorf("fs: Stdout is not readable")
}

func (s Stdout) Write(buf UserBuffer) (int, error) {
	for _, b := range buf.Bytes {
		s.UART.PutChar(b)
	}
	return len(buf.Bytes), nil
}

func (Stdout) Seek(int64, SeekWhence) (int64, error) {
	return 0, fmt.Errorf("fs: Stdout is not seekable")
}
func (Stdout) Stat(out *Kstat) error { *out = Kstat{Mode: 0o020666}; return nil }
func (Stdout) Name() string          { return "Stdout" }
func (Stdout) Getdents([]Dirent) (int, error) {
	return 0, fmt.Errorf("fs: Stdout is not a directory")
}

// pipeCapacity is the fixed size of a Pipe's ring buffer.
const pipeCapacity = 4096

// pipeState is shared by the read and write ends of a Pipe.
type pipeState struct {
	mu         sync.Mutex
	buf        [pipeCapacity]byte
	head, tail int
	count      int
	writers    int
	readWait   chan struct{}
	writeWait  chan struct{}
}

// NewPipe returns the read and write ends of a fixed-capacity
// ring-buffer pipe. Unlike the IRQ-backed Stdin, a pipe has no device to
// wait on, so blocking here parks the goroutine on a channel rather than
// calling into the scheduler directly.
func NewPipe() (*PipeReader, *PipeWriter) {
	s := &pipeState{writers: 1, readWait: make(chan struct{}, 1), writeWait: make(chan struct{}, 1)}
	return &PipeReader{s: s}, &PipeWriter{s: s}
}

type PipeReader struct{ s *pipeState }
type PipeWriter struct{ s *pipeState }

func (*PipeReader) Readable() bool { return true }
func (*PipeReader) Writable() bool { return false }

func (p *PipeReader) Read(buf UserBuffer) (int, error) {
	if len(buf.Bytes) == 0 {
		return 0, nil
	}
	for {
		p.s.mu.Lock()
		if p.s.count > 0 {
			n := 0
			for n < len(buf.Bytes) && p.s.count > 0 {
				buf.Bytes[n] = p.s.buf[p.s.head]
				p.s.head = (p.s.head + 1) % pipeCapacity
				p.s.count--
				n++
			}
			p.s.mu.Unlock()
			select {
			case p.s.writeWait <- struct{}{}:
			default:
			}
			return n, nil
		}
		writersLeft := p.s.writers
		p.s.mu.Unlock()
		if writersLeft == 0 {
			return 0, nil
		}
		<-p.s.readWait
	}
}

func (*PipeReader) Write(UserBuffer) (int, error) { return 0, fmt.Errorf("fs: pipe read end is not writable") }
func (*PipeReader) Seek(int64, SeekWhence) (int64, error) {
	return 0, fmt.Errorf("fs: pipe is not seekable")
}
func (*PipeReader) Stat(out *Kstat) error { *out = Kstat{Mode: 0o010000}; return nil }
func (*PipeReader) Name() string          { return "PipeRead" }
func (*PipeReader) Getdents([]Dirent) (int, error) {
	return 0, fmt.Errorf("fs: pipe is not a directory")
}

// Close does nothing: the read end keeps no closed state, and reads after
// Close behave as before.
func (p *PipeReader) Close() {}

func (*PipeWriter) Readable() bool { return false }
func (*PipeWriter) Writable() bool { return true }
func (*PipeWriter) Read(UserBuffer) (int, error) { return 0, fmt.Errorf("fs: pipe write end is not readable") }

func (p *PipeWriter) Write(buf UserBuffer) (int, error) {
	n := 0
	for n < len(buf.Bytes) {
		p.s.mu.Lock()
		for n < len(buf.Bytes) && p.s.count < pipeCapacity {
			p.s.buf[p.s.tail] = buf.Bytes[n]
			p.s.tail = (p.s.tail + 1) % pipeCapacity
			p.s.count++
			n++
		}
		full := p.s.count == pipeCapacity
		p.s.mu.Unlock()
		select {
		case p.s.readWait <- struct{}{}:
		default:
		}
		if full && n < len(buf.Bytes) {
			<-p.s.writeWait
		}
	}
	return n, nil
}

func (*PipeWriter) Seek(int64, SeekWhence) (int64, error) {
	return 0, fmt.Errorf("fs: pipe is not seekable")
}
func (*PipeWriter) Stat(out *Kstat) error { *out = Kstat{Mode: 0o010000}; return nil }
func (*PipeWriter) Name() string          { return "PipeWrite" }
func (*PipeWriter) Getdents([]Dirent) (int, error) {
	return 0, fmt.Errorf("fs: pipe is not a directory")
}

// Close marks the write end closed, waking any blocked reader so it can
// observe EOF (count stays 0, writers drops to 0).
func (p *PipeWriter) Close() {
	p.s.mu.Lock()
	p.s.writers--
	p.s.mu.Unlock()
	select {
	case p.s.readWait <- struct{}{}:
	default:
	}
}

// OSInode is a file backed by blockdev.BlockDevice: a flat run of blocks
// addressed by a directory entry recording (name, start block, length in
// bytes). There is no FAT chain, no subdirectories beyond a single flat
// root, and no free-space bitmap; real FAT32 is the out-of-scope
// collaborator this stands in for.
type OSInode struct {
	dev   blockdev.BlockDevice
	dir   *Directory
	name  string
	pos   int64
	flags OpenFlags
}

// OpenFlags mirrors the subset of open(2) flags the syscall surface uses.
type OpenFlags int

const (
	ORDONLY OpenFlags = 0
	OWRONLY OpenFlags = 1 << 0
	ORDWR   OpenFlags = 1 << 1
	OCREATE OpenFlags = 1 << 9
	OTRUNC  OpenFlags = 1 << 10
)

type fileEntry struct {
	name       string
	startBlock uint32
	size       int64
}

// Directory is the single flat root directory OSInode resolves names
// against; a real FAT32 volume nests many of these. Guarded by mu so
// concurrent opens/creates from different tasks don't race.
type Directory struct {
	mu      sync.Mutex
	dev     blockdev.BlockDevice
	entries map[string]*fileEntry
	nextBlk uint32
}

// NewRootDirectory constructs the root directory collaborator over dev,
// starting block allocation at block 1 (block 0 is reserved, as on a real
// FAT volume's boot sector).
func NewRootDirectory(dev blockdev.BlockDevice) *Directory {
	return &Directory{dev: dev, entries: make(map[string]*fileEntry), nextBlk: 1}
}

// Open resolves path against the root directory, creating it if OCREATE
// is set in flags and it doesn't exist, and truncating it if OTRUNC is
// set. The returned OSInode keeps flags.
func (d *Directory) Open(path string, flags OpenFlags) (*OSInode, error) {
	d.mu.Lock()
	e, ok := d.entries[path]
	if !ok {
		if flags&OCREATE == 0 {
			d.mu.Unlock()
			return nil, fmt.Errorf("fs: %s: no such file", path)
		}
		e = &fileEntry{name: path, startBlock: d.nextBlk}
		d.nextBlk++
		d.entries[path] = e
	} else if flags&OTRUNC != 0 {
		e.size = 0
	}
	d.mu.Unlock()
	return &OSInode{dev: d.dev, dir: d, name: path, flags: flags}, nil
}

// Remove deletes the named entry.
func (d *Directory) Remove(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[path]; !ok {
		return fmt.Errorf("fs: %s: no such file", path)
	}
	delete(d.entries, path)
	return nil
}

// Mkdir registers an empty directory entry. Our flat model doesn't nest
// directories; mkdirat(2) callers only need the name to
// round-trip through chdir/getcwd, not a real subtree.
func (d *Directory) Mkdir(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[path]; ok {
		return fmt.Errorf("fs: %s: already exists", path)
	}
	d.entries[path] = &fileEntry{name: path}
	return nil
}

// ValidateDir reports whether path names an existing directory entry (or
// the root). Each Process owns its own cwd string in the real kernel
// (see kernel.Process.Cwd); Directory only validates that a chdir target
// actually exists.
func (d *Directory) ValidateDir(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if path == "/" {
		return nil
	}
	if _, ok := d.entries[path]; !ok {
		return fmt.Errorf("fs: %s: no such directory", path)
	}
	return nil
}

func (i *OSInode) entry() *fileEntry {
	i.dir.mu.Lock()
	defer i.dir.mu.Unlock()
	return i.dir.entries[i.name]
}

func (i *OSInode) Readable() bool { return i.flags&OWRONLY == 0 }
func (i *OSInode) Writable() bool { return i.flags&(OWRONLY|ORDWR) != 0 }

func (i *OSInode) Read(buf UserBuffer) (int, error) {
	e := i.entry()
	if e == nil {
		return 0, fmt.Errorf("fs: %s: deleted", i.name)
	}
	remaining := e.size - i.pos
	if remaining <= 0 {
		return 0, nil
	}
	n := len(buf.Bytes)
	if int64(n) > remaining {
		n = int(remaining)
	}
	read := 0
	for read < n {
		blk := e.startBlock + uint32(i.pos/blockdev.BlockSize)
		off := int(i.pos % blockdev.BlockSize)
		var block [blockdev.BlockSize]byte
		if err := i.dev.ReadBlock(blk, &block); err != nil {
			return read, err
		}
		chunk := blockdev.BlockSize - off
		if chunk > n-read {
			chunk = n - read
		}
		copy(buf.Bytes[read:read+chunk], block[off:off+chunk])
		read += chunk
		i.pos += int64(chunk)
	}
	return read, nil
}

func (i *OSInode) Write(buf UserBuffer) (int, error) {
	e := i.entry()
	if e == nil {
		return 0, fmt.Errorf("fs: %s: deleted", i.name)
	}
	written := 0
	for written < len(buf.Bytes) {
		blk := e.startBlock + uint32(i.pos/blockdev.BlockSize)
		off := int(i.pos % blockdev.BlockSize)
		var block [blockdev.BlockSize]byte
		if off != 0 {
			if err := i.dev.ReadBlock(blk, &block); err != nil {
				return written, err
			}
		}
		chunk := blockdev.BlockSize - off
		if chunk > len(buf.Bytes)-written {
			chunk = len(buf.Bytes) - written
		}
		copy(block[off:off+chunk], buf.Bytes[written:written+chunk])
		if err := i.dev.WriteBlock(blk, &block); err != nil {
			return written, err
		}
		written += chunk
		i.pos += int64(chunk)
	}
	i.dir.mu.Lock()
	if i.pos > e.size {
		e.size = i.pos
	}
	i.dir.mu.Unlock()
	return written, nil
}

func (i *OSInode) Seek(offset int64, whence SeekWhence) (int64, error) {
	e := i.entry()
	if e == nil {
		return 0, fmt.Errorf("fs: %s: deleted", i.name)
	}
	switch whence {
	case SeekSet:
		i.pos = offset
	case SeekCur:
		i.pos += offset
	case SeekEnd:
		i.pos = e.size + offset
	default:
		return 0, fmt.Errorf("fs: invalid whence %d", whence)
	}
	return i.pos, nil
}

func (i *OSInode) Stat(out *Kstat) error {
	e := i.entry()
	if e == nil {
		return fmt.Errorf("fs: %s: deleted", i.name)
	}
	*out = Kstat{Mode: 0o100644, Nlink: 1, Size: e.size, Blksize: blockdev.BlockSize}
	return nil
}

func (i *OSInode) Name() string { return i.name }

func (i *OSInode) Getdents(out []Dirent) (int, error) {
	i.dir.mu.Lock()
	defer i.dir.mu.Unlock()
	n := 0
	for name, e := range i.dir.entries {
		if n >= len(out) {
			break
		}
		out[n] = Dirent{Ino: uint64(e.startBlock), Off: int64(n), Type: 8, Name: name}
		n++
	}
	return n, nil
}
