package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/rv64core/kcore/internal/bootcfg"
	"github.com/rv64core/kcore/internal/mm"
)

// initSpaceBase and initSpaceSize size the flat address space every
// spawned init process gets, matching the scenario tests' convention.
const (
	initSpaceBase = 0x1000
	initSpaceSize = 1 << 16
)

// pollInterval is how often "run" and "wait" poll a spawned process for
// zombie status; this simulator has no wait-queue for process exit at the
// cmd/kcore boundary (Kernel.Wait4 requires a waiting Task, which a CLI
// entrypoint outside any task's context doesn't have), so polling
// Process.Zombie stands in for it.
const pollInterval = 5 * time.Millisecond

// runCmd implements subcommands.Command for "run": boot a fresh system,
// spawn one built-in program as its init process, and exit with that
// program's exit status once it completes.
type runCmd struct {
	configPath string
	program    string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "boot the kernel, run one built-in program, and exit with its status" }
func (*runCmd) Usage() string {
	return "run [-config path] [-program name]\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration (bootcfg.Config); empty uses the defaults")
	f.StringVar(&c.program, "program", "hello", "built-in program to run as the init process (hello, shell)")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	entry, ok := programs[c.program]
	if !ok {
		logrus.WithField("program", c.program).Error("kcore: no such built-in program")
		return subcommands.ExitUsageError
	}

	cfg, err := bootcfg.Load(c.configPath)
	if err != nil {
		logrus.WithError(err).Error("kcore: loading boot configuration")
		return subcommands.ExitFailure
	}

	sys, err := bootSystem(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Error("kcore: boot failed")
		return subcommands.ExitFailure
	}
	defer sys.Close()

	space := mm.NewFlatSpace(initSpaceBase, initSpaceSize)
	proc := sys.kernel.SpawnInitProcess(sys.uart, sys.kernel.RootDir(), space, entry)

	for !proc.Zombie() {
		time.Sleep(pollInterval)
	}

	code := proc.ExitCode()
	fmt.Printf("%s exited with code %d\n", c.program, code)
	return subcommands.ExitStatus(code)
}
