// Package plic implements the PlicDevice collaborator the kernel's IRQ
// manager drives: enable/set_priority/set_threshold/current(claim)/clear.
// Real PLIC hardware register layouts are a device-driver concern outside
// this module; this is a software model of the same
// claim/complete protocol, raised explicitly by test code or a device's
// completion handler instead of by memory-mapped register writes.
package plic

import (
	"sync"

	"github.com/rv64core/kcore/internal/kernel"
)

// Plic is a software Platform-Level Interrupt Controller: sources have a
// priority, each hart has an enable mask and a threshold, and Current
// claims the highest-priority pending source above that hart's
// threshold, the same selection rule real PLIC hardware applies.
type Plic struct {
	mu        sync.Mutex
	priority  map[int]int
	pending   map[int]bool
	enabled   map[int]map[kernel.HartID]bool // source -> hart -> enabled
	threshold map[kernel.HartID]int          // hart -> threshold
}

// New constructs an empty Plic with no sources registered.
func New() *Plic {
	return &Plic{
		priority:  make(map[int]int),
		pending:   make(map[int]bool),
		enabled:   make(map[int]map[kernel.HartID]bool),
		threshold: make(map[kernel.HartID]int),
	}
}

// Enable implements kernel.PlicDevice: source becomes claimable on hart.
func (p *Plic) Enable(source int, hart kernel.HartID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled[source] == nil {
		p.enabled[source] = make(map[kernel.HartID]bool)
	}
	p.enabled[source][hart] = true
	if _, ok := p.priority[source]; !ok {
		p.priority[source] = 1
	}
}

// SetPriority implements kernel.PlicDevice.
func (p *Plic) SetPriority(source int, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priority[source] = priority
}

// SetThreshold implements kernel.PlicDevice: hart claims nothing at or
// below threshold.
func (p *Plic) SetThreshold(hart kernel.HartID, threshold int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threshold[hart] = threshold
}

// Raise marks source pending, standing in for the real interrupt line
// toggling high. cmd/kcore calls it from console.PTYUart's OnData hook;
// blockdev.RAMDisk never raises an interrupt.
func (p *Plic) Raise(source int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[source] = true
}

// Current implements kernel.PlicDevice's claim: the highest-priority
// source pending, enabled for hart, and above hart's threshold; 0
// (spurious) if none qualifies. Claiming clears pending so a second
// concurrent claim on another hart cannot also observe it.
func (p *Plic) Current(hart kernel.HartID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	best, bestPriority := 0, p.threshold[hart]
	for source, isPending := range p.pending {
		if !isPending || !p.enabled[source][hart] {
			continue
		}
		if pr := p.priority[source]; pr > bestPriority {
			best, bestPriority = source, pr
		}
	}
	if best != 0 {
		p.pending[best] = false
	}
	return best
}

// Clear implements kernel.PlicDevice's complete: acknowledges that hart
// has finished servicing irq. It changes no state; a claimed source can be
// raised again whether or not Clear was called.
func (p *Plic) Clear(irq int, hart kernel.HartID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = irq
	_ = hart
}
