// Package blockdev implements the BlockDevice collaborator the file
// layer depends on: read_block/write_block plus the interrupt and
// mode-switch hooks the SD-card driver exposes. A real FAT32 driver and
// its block cache live above this; this package is the minimum concrete
// device needed to run open/write/read flows against a simulated card.
package blockdev

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"github.com/google/btree"
)

// BlockSize is fixed at 512 bytes, as on real SD hardware.
const BlockSize = 512

// BlockDevice is the interface consumed by the file layer.
type BlockDevice interface {
	ReadBlock(id uint32, buf *[BlockSize]byte) error
	WriteBlock(id uint32, buf *[BlockSize]byte) error
	HandlerInterrupt()
	ChangeMode(ctx context.Context) error
}

// cacheEntry is a single cached block, keyed by block id in the write-
// through cache below. It implements btree.Item so the cache can be a
// plain *btree.BTree, matching the google/btree v1.0.1 API (pre-generics).
type cacheEntry struct {
	id   uint32
	data [BlockSize]byte
}

// Less implements btree.Item.
func (e *cacheEntry) Less(than btree.Item) bool {
	return e.id < than.(*cacheEntry).id
}

// RAMDisk is a BlockDevice backed by host memory (and, if imagePath is
// set, a host file used purely for persistence across runs). Writes are
// write-through and concurrent block access is serialized by mu.
//
// The write-through cache is a single global *btree.BTree keyed by block
// id rather than a per-block-lock arrangement; callers never observe the
// difference.
type RAMDisk struct {
	mu      sync.Mutex
	blocks  [][BlockSize]byte
	cache   *btree.BTree
	irqs    int
	image   *flock.Flock
	imgFile *os.File
	mode    string
}

// NewRAMDisk allocates an in-memory disk of nBlocks blocks. If imagePath
// is non-empty, the disk image is persisted there and an exclusive
// host-file lock (gofrs/flock) guards against a second simulator instance
// opening the same backing file.
func NewRAMDisk(nBlocks int, imagePath string) (*RAMDisk, error) {
	d := &RAMDisk{
		blocks: make([][BlockSize]byte, nBlocks),
		cache:  btree.New(32),
		mode:   "idle",
	}
	if imagePath == "" {
		return d, nil
	}
	lock := flock.New(imagePath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("blockdev: locking image %s: %w", imagePath, err)
	}
	if !locked {
		return nil, fmt.Errorf("blockdev: image %s is in use by another kernel instance", imagePath)
	}
	d.image = lock
	f, err := os.OpenFile(imagePath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("blockdev: opening image %s: %w", imagePath, err)
	}
	d.imgFile = f
	if err := d.loadImage(); err != nil {
		f.Close()
		lock.Unlock()
		return nil, err
	}
	return d, nil
}

func (d *RAMDisk) loadImage() error {
	buf := make([]byte, BlockSize)
	for i := range d.blocks {
		n, err := d.imgFile.ReadAt(buf, int64(i*BlockSize))
		if n == 0 {
			break
		}
		if err != nil && n < BlockSize {
			break
		}
		copy(d.blocks[i][:], buf)
	}
	return nil
}

// Close flushes cached blocks to the backing image file (if any) and
// releases the exclusive lock.
func (d *RAMDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.imgFile == nil {
		return nil
	}
	var firstErr error
	for i := range d.blocks {
		if _, err := d.imgFile.WriteAt(d.blocks[i][:], int64(i*BlockSize)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.imgFile.Close()
	d.image.Unlock()
	return firstErr
}

// ReadBlock implements BlockDevice. Cache hits are served from the btree;
// misses read through to the backing slice and populate the cache.
func (d *RAMDisk) ReadBlock(id uint32, buf *[BlockSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= len(d.blocks) {
		return fmt.Errorf("blockdev: block %d out of range", id)
	}
	if item := d.cache.Get(&cacheEntry{id: id}); item != nil {
		*buf = item.(*cacheEntry).data
		return nil
	}
	*buf = d.blocks[id]
	d.cache.ReplaceOrInsert(&cacheEntry{id: id, data: *buf})
	return nil
}

// WriteBlock implements BlockDevice. Write-through: the backing slice is
// updated synchronously alongside the cache, so a crash between the two
// is not a state this simulator can reach.
func (d *RAMDisk) WriteBlock(id uint32, buf *[BlockSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= len(d.blocks) {
		return fmt.Errorf("blockdev: block %d out of range", id)
	}
	d.blocks[id] = *buf
	d.cache.ReplaceOrInsert(&cacheEntry{id: id, data: *buf})
	return nil
}

// HandlerInterrupt implements BlockDevice.handler_interrupt: acknowledges
// a completed DMA transfer. It does not itself wake parked tasks; that
// is the irq package's job.
func (d *RAMDisk) HandlerInterrupt() {
	d.mu.Lock()
	d.irqs++
	d.mu.Unlock()
}

// Interrupts reports how many completion interrupts have been serviced,
// for tests.
func (d *RAMDisk) Interrupts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.irqs
}

// ChangeMode models the SD controller's bus mode-switch handshake,
// which on real k210 hardware sometimes needs a retry.
// We use an exponential backoff (cenkalti/backoff) rather than a fixed
// sleep-and-retry loop.
func (d *RAMDisk) ChangeMode(ctx context.Context) error {
	attempt := 0
	op := func() error {
		attempt++
		d.mu.Lock()
		defer d.mu.Unlock()
		if attempt < 2 {
			return fmt.Errorf("blockdev: sd controller mode switch not yet acknowledged")
		}
		d.mode = "high-speed"
		return nil
	}
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(op, b)
}

// Mode reports the current bus mode, for tests.
func (d *RAMDisk) Mode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}
