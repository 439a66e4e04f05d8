package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/rv64core/kcore/internal/bootcfg"
)

// bootCmd implements subcommands.Command for "boot": bring the system up
// and hold it open for interactive use against the console's pty slave,
// until interrupted; the manual-testing counterpart to "run"/"wait",
// which each spawn one program and exit.
type bootCmd struct {
	configPath string
}

func (*bootCmd) Name() string     { return "boot" }
func (*bootCmd) Synopsis() string { return "boot the kernel and hold it open on a live console" }
func (*bootCmd) Usage() string {
	return "boot [-config path]\n"
}

func (c *bootCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration (bootcfg.Config); empty uses the defaults")
}

func (c *bootCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	fmt.Printf("kernel booted on %d hart(s); console at %s\n", cfg.NumHarts, sys.uart.SlaveName())
	fmt.Println("connect with: screen " + sys.uart.SlaveName())
	fmt.Println("press Ctrl-C to shut down")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return subcommands.ExitSuccess
}
