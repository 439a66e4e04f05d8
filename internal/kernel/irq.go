package kernel

// PlicDevice is the interrupt-controller interface the IRQ manager
// drives.
type PlicDevice interface {
	Enable(source int, hart HartID)
	SetPriority(source int, priority int)
	SetThreshold(hart HartID, threshold int)
	Current(hart HartID) int // claim
	Clear(irq int, hart HartID)
}

// UartDevice and BlockDevice's HandlerInterrupt/ReadBlock/WriteBlock
// collaborators are consumed through fs.UartDevice and
// blockdev.BlockDevice; IrqManager only needs to know which IRQ numbers
// those two devices own.
const (
	IRQDMA0 = 27
	IRQUART = 33
)

// irqDeviceHandlers dispatches a claimed IRQ to the device that owns it.
// Kernel construction wires these from the concrete blockdev/console
// devices; kept as a pair of plain callbacks here so this file doesn't
// import blockdev or fs.
type irqDeviceHandlers struct {
	dma  func()
	uart func()
}

// IrqManager wraps the PLIC and owns the per-IRQ wait queues.
type IrqManager struct {
	mu       *IrqSafeSpinlock
	plic     PlicDevice
	waiters  map[int][]*Task
	handlers irqDeviceHandlers
}

// NewIrqManager constructs an IrqManager over plic. Device handlers are
// registered afterward with RegisterDeviceHandlers, since the devices
// themselves are constructed after the kernel's core in the boot
// sequence.
func NewIrqManager(plic PlicDevice) *IrqManager {
	return &IrqManager{
		mu:      NewIrqSafeSpinlock(),
		plic:    plic,
		waiters: make(map[int][]*Task),
	}
}

// RegisterDeviceHandlers wires the DMA/UART completion callbacks invoked
// by HandlerExt.
func (im *IrqManager) RegisterDeviceHandlers(dma, uart func()) {
	im.handlers.dma = dma
	im.handlers.uart = uart
}

// RegisterIRQ enables source at the PLIC with priority 1 and creates an
// empty waiter queue for it.
func (im *IrqManager) RegisterIRQ(source int, hart HartID) {
	im.plic.Enable(source, hart)
	im.plic.SetPriority(source, 1)
	im.waiters[source] = nil
}

// enqueue appends task to irq's waiter FIFO. Must be called with im.mu
// held.
func (im *IrqManager) enqueue(irq int, task *Task) {
	im.waiters[irq] = append(im.waiters[irq], task)
}

// dequeue pops the oldest waiter on irq, preserving arrival order.
func (im *IrqManager) dequeue(irq int) *Task {
	q := im.waiters[irq]
	if len(q) == 0 {
		return nil
	}
	t := q[0]
	im.waiters[irq] = q[1:]
	return t
}

// HandlerExt services one external interrupt, invoked from trap
// dispatch on a SupervisorExternal/SupervisorSoft interrupt: claim,
// device handler, wake one waiter, complete. notify, if
// non-nil, is called after waking a parked task so an idle hart other
// than the one servicing this interrupt can pick it up.
func (im *IrqManager) HandlerExt(p *Processor, hart HartID, rq *ReadyQueue, notify func()) {
	im.mu.Acquire(p)
	irq := im.plic.Current(hart)
	if irq == 0 {
		im.mu.Release(p)
		return // spurious
	}
	switch irq {
	case IRQDMA0:
		if im.handlers.dma != nil {
			im.handlers.dma()
		}
	case IRQUART:
		if im.handlers.uart != nil {
			im.handlers.uart()
		}
	default:
		im.mu.Release(p)
		panic("kernel: unsupported IRQ")
	}
	woken := im.dequeue(irq)
	im.mu.Release(p)

	if woken != nil {
		woken.setStatus(TaskReady)
		rq.PushBack(p, woken)
		if notify != nil {
			notify()
		}
	}
	im.plic.Clear(irq, hart)
}

// taskIRQWaiter adapts a specific task's blocking wait onto fs.IRQWaiter,
// so the fs package's Stdin can park on a device IRQ without importing
// kernel. Each task gets its own waiter value when its Stdin fd is
// installed, rather than the kernel exposing one WaitForIRQ method that
// would need to guess which task called it.
type taskIRQWaiter struct {
	k    *Kernel
	task *Task
}

func (w taskIRQWaiter) WaitForIRQ(irq int) {
	w.k.waitForIRQAndRunNext(w.task, irq)
}

// waitForIRQAndRunNext parks the calling task on irq's waiter queue and
// schedules away; the matching HandlerExt wakes it.
// The caller is always task's own goroutine, about to block, so
// task.onHart (set by schedule when this task was last resumed) is the
// right processor to record the interrupt-disable nesting against.
func (k *Kernel) waitForIRQAndRunNext(task *Task, irq int) {
	p := task.onHart
	if p == nil {
		panic("kernel: waitForIRQAndRunNext called off a task that was never scheduled")
	}
	p.pushOff()
	defer p.popOff()

	task.setStatus(TaskWaiting)
	taskCx := &task.cx

	k.irq.mu.Acquire(p)
	k.irq.enqueue(irq, task)
	k.irq.mu.Release(p)

	k.schedule(p, taskCx)
}
