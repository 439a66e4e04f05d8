package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(bootCmd), "")
	subcommands.Register(new(runCmd), "")
	subcommands.Register(new(waitCmd), "")

	flag.Parse()
	logrus.SetLevel(logrus.InfoLevel)
	os.Exit(int(subcommands.Execute(context.Background())))
}
