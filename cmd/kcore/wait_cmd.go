package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/rv64core/kcore/internal/bootcfg"
	"github.com/rv64core/kcore/internal/kernel"
	"github.com/rv64core/kcore/internal/mm"
)

// waitResult is the JSON shape written to stdout (id, exitStatus),
// machine-parseable rather than left for a human to read off of "exited
// with code N".
type waitResult struct {
	ID         string `json:"id"`
	ExitStatus int    `json:"exitStatus"`
}

// waitCmd implements subcommands.Command for "wait": boot a fresh system,
// spawn one built-in program, and report its wait(2)-shaped exit status
// as JSON once it exits. There is no persistent daemon behind this
// simulator for a separate invocation to attach to, so this boots and
// waits on its own spawned process in one shot.
type waitCmd struct {
	configPath string
	program    string
}

func (*waitCmd) Name() string     { return "wait" }
func (*waitCmd) Synopsis() string { return "boot the kernel, run one built-in program, and report its wait status as JSON" }
func (*waitCmd) Usage() string {
	return "wait [-config path] [-program name]\n"
}

func (c *waitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration (bootcfg.Config); empty uses the defaults")
	f.StringVar(&c.program, "program", "hello", "built-in program to run as the init process (hello, shell)")
}

func (c *waitCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	status := kernel.EncodeExitStatus(proc.ExitCode())
	result := waitResult{ID: c.program, ExitStatus: status.ExitStatus()}
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		logrus.WithError(err).Error("kcore: marshaling wait result")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
