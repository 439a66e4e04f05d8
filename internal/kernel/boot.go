package kernel

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Processors returns the harts this kernel was booted with.
func (k *Kernel) Processors() []*Processor { return k.procsByHart }

// Boot brings up numHarts harts: each hart constructs its Processor,
// all harts synchronize on having done so (the software rendition of the
// boot hart IPI-ing the others once its own bring-up is done) using an
// errgroup barrier, and only then does
// each hart's idle loop goroutine start pulling from the ready queue.
// Boot returns once every hart's idle loop goroutine has been started; the
// idle loops themselves keep running in the background for the lifetime
// of the process.
func (k *Kernel) Boot(ctx context.Context, numHarts int) error {
	if numHarts < 1 {
		return fmt.Errorf("kernel: Boot requires at least one hart")
	}
	procs := make([]*Processor, numHarts)

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < numHarts; i++ {
		i := i
		g.Go(func() error {
			procs[i] = NewProcessor(HartID(i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("kernel: boot barrier: %w", err)
	}

	k.procsByHart = procs
	for _, p := range procs {
		p := p
		go k.runIdleLoop(p)
	}
	log.WithField("harts", numHarts).Info("kernel: boot complete")
	return nil
}
