// Command kcore boots the simulated kernel core and drives it from the
// host: it wires the RAMDisk/PLIC/PTYUart collaborators together and
// dispatches to the "boot", "run" and "wait" subcommands.Command
// implementations.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rv64core/kcore/internal/blockdev"
	"github.com/rv64core/kcore/internal/bootcfg"
	"github.com/rv64core/kcore/internal/console"
	"github.com/rv64core/kcore/internal/fs"
	"github.com/rv64core/kcore/internal/kernel"
	"github.com/rv64core/kcore/internal/plic"

	// Registers the full syscall surface into kernel.RegisterSyscall via
	// package-level init()s; nothing in this command calls the package
	// directly, so without this blank import every ecall would hit the
	// kernel's unimplemented-syscall panic.
	_ "github.com/rv64core/kcore/internal/kernel/syscall"
)

// system bundles a booted Kernel with the concrete devices it owns, so a
// subcommand's deferred cleanup (console.Close, RAMDisk.Close) has
// something to reach for after boot returns.
type system struct {
	kernel   *kernel.Kernel
	uart     *console.PTYUart
	disk     *blockdev.RAMDisk
	stopPump chan struct{}
}

// irqPumpInterval is how often the pump goroutine below asks each hart's
// IrqManager whether a PLIC source is pending, standing in for the real
// SupervisorExternal trap a hart would take the instant the interrupt
// line goes high. A polled pump rather than a genuine async trap is the
// cost of not modeling a real core's interrupt-pin wiring; the
// claim/complete protocol it drives is the same either way.
const irqPumpInterval = 2 * time.Millisecond

// runIRQPump repeatedly offers every booted hart a chance to service a
// pending PLIC source, until stop is closed. HandlerExt itself is a
// no-op (spurious) when nothing is pending, so polling harts that have
// nothing to do costs only the lock acquisitions inside it.
func runIRQPump(k *kernel.Kernel, stop chan struct{}) {
	ticker := time.NewTicker(irqPumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, p := range k.Processors() {
				k.IRQ().HandlerExt(p, p.ID, k.Ready(), k.NotifyWork)
			}
		}
	}
}

// bootSystem runs the boot control flow end to end with real
// collaborators rather than test fakes: allocate the RAM disk and root
// directory, open a host pty standing in for the UART, construct the
// software PLIC, register the fixed DMA/UART sources plus any extra
// bootcfg.Config.PLICSources, bridge pty data arrival to a raised UART
// interrupt, and bring up the configured number of harts.
func bootSystem(ctx context.Context, cfg bootcfg.Config) (*system, error) {
	disk, err := blockdev.NewRAMDisk(cfg.SDBlocks, cfg.SDImagePath)
	if err != nil {
		return nil, fmt.Errorf("kcore: allocating RAM disk: %w", err)
	}
	root := fs.NewRootDirectory(disk)

	uart, err := console.Open()
	if err != nil {
		return nil, fmt.Errorf("kcore: opening console: %w", err)
	}

	dev := plic.New()
	k := kernel.NewKernelWithLimit(dev, root, cfg.MaxTasks)

	k.IRQ().RegisterDeviceHandlers(disk.HandlerInterrupt, uart.HandlerInterrupt)
	k.IRQ().RegisterIRQ(kernel.IRQDMA0, 0)
	k.IRQ().RegisterIRQ(kernel.IRQUART, 0)
	for _, src := range cfg.PLICSources {
		k.IRQ().RegisterIRQ(src, kernel.HartID(0))
	}
	uart.OnData = func() { dev.Raise(kernel.IRQUART) }

	if err := k.Boot(ctx, cfg.NumHarts); err != nil {
		uart.Close()
		return nil, fmt.Errorf("kcore: booting harts: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"harts":   cfg.NumHarts,
		"console": uart.SlaveName(),
	}).Info("kcore: system booted")

	stop := make(chan struct{})
	go runIRQPump(k, stop)

	return &system{kernel: k, uart: uart, disk: disk, stopPump: stop}, nil
}

// Close releases the host resources backing the simulated devices.
func (s *system) Close() {
	close(s.stopPump)
	if err := s.uart.Close(); err != nil {
		logrus.WithError(err).Warn("kcore: closing console")
	}
	if err := s.disk.Close(); err != nil {
		logrus.WithError(err).Warn("kcore: closing RAM disk")
	}
}
