// Package console bridges the simulated fs.UartDevice collaborator to a
// real host pseudo-terminal, for interactive manual testing of the
// scheduler/syscall core against a live terminal instead of a scripted
// scenario. The "UART line" is a host pty pair opened with
// github.com/kr/pty, and github.com/containerd/console puts the terminal
// into raw mode the way a real UART bypasses any host line discipline
// behind its getchar/putchar interface.
package console

import (
	"fmt"
	"os"
	"sync"

	ccon "github.com/containerd/console"
	"github.com/kr/pty"
)

// PTYUart implements fs.UartDevice (internal/fs) over a host pty pair: the
// kernel's Stdin/Stdout read and write through the pty master exactly as
// the real UART's getchar/putchar would move bytes across the SoC's serial
// line.
type PTYUart struct {
	master *os.File
	slave  *os.File
	raw    ccon.Console

	// rx is fed by a background reader goroutine so GetChar can be
	// genuinely non-blocking (a bare master.Read would block the calling
	// task's goroutine, defeating Stdin's wait_for_irq_and_run_next
	// fallback in fs.Stdin.Read).
	rx chan byte

	// OnData, if set, is called from readLoop's goroutine every time a
	// fresh batch of bytes lands on rx; the hook a PLIC wiring uses to
	// raise IRQUART, standing in for the pty master's data-ready event
	// toggling the real UART's interrupt line. Left nil, PTYUart is just
	// a polled device (GetChar) with no interrupt source.
	OnData func()

	mu   sync.Mutex
	irqs int
}

// Open allocates a host pty pair and puts the pty master into raw mode
// (so ^C, ^D etc. reach the simulated kernel as
// ordinary bytes rather than being intercepted by the host's line
// discipline), mirroring the real hardware UART having no host-side
// terminal processing at all.
func Open() (*PTYUart, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("console: opening pty: %w", err)
	}
	raw, err := ccon.ConsoleFromFile(master)
	if err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("console: wrapping pty master: %w", err)
	}
	if err := raw.SetRaw(); err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("console: setting raw mode: %w", err)
	}
	u := &PTYUart{master: master, slave: slave, raw: raw, rx: make(chan byte, 4096)}
	go u.readLoop()
	return u, nil
}

// readLoop feeds rx from the pty master until it closes, run on its own
// goroutine so GetChar never blocks the calling task.
func (u *PTYUart) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := u.master.Read(buf)
		for i := 0; i < n; i++ {
			u.rx <- buf[i]
		}
		if n > 0 && u.OnData != nil {
			u.OnData()
		}
		if err != nil {
			return
		}
	}
}

// Close restores the terminal's prior mode and releases the pty pair.
func (u *PTYUart) Close() error {
	_ = u.raw.Reset()
	u.slave.Close()
	return u.master.Close()
}

// SlaveName returns the path of the pty slave a test harness or human
// operator can `screen`/`minicom` into to drive the simulated console.
func (u *PTYUart) SlaveName() string { return u.slave.Name() }

// GetChar implements fs.UartDevice: a non-blocking read of one buffered
// byte, standing in for the real UART's RX FIFO peek.
func (u *PTYUart) GetChar() (byte, bool) {
	select {
	case c := <-u.rx:
		return c, true
	default:
		return 0, false
	}
}

// PutChar implements fs.UartDevice: writes one byte straight to the pty
// master, standing in for the real UART's TX register.
func (u *PTYUart) PutChar(b byte) {
	u.master.Write([]byte{b})
}

// HandlerInterrupt implements fs.UartDevice: acknowledges an RX-ready
// interrupt. The irq package calls this from HandlerExt before waking a
// task parked on IRQUART.
func (u *PTYUart) HandlerInterrupt() {
	u.mu.Lock()
	u.irqs++
	u.mu.Unlock()
}

// Interrupts reports how many RX interrupts have been serviced, for tests.
func (u *PTYUart) Interrupts() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.irqs
}
