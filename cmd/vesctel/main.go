package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/vesctel/cmd/vesctel/console"
	"github.com/temoto/vesctel/cmd/vesctel/decode"
	"github.com/temoto/vesctel/cmd/vesctel/run"
	"github.com/temoto/vesctel/cmd/vesctel/subcmd"
	cmd_tele "github.com/temoto/vesctel/cmd/vesctel/tele"
	"github.com/temoto/vesctel/internal/state"
	state_new "github.com/temoto/vesctel/internal/state/new"
	"github.com/temoto/vesctel/internal/tele"
	"github.com/temoto/vesctel/log2"
)

var log = log2.NewStderr(log2.LDebug)

// set by script/build -ldflags
var BuildVersion string = "unknown"

var modules = []subcmd.Mod{
	run.Mod,
	console.Mod,
	decode.Mod,
	cmd_tele.Mod,
}

func main() {
	flagset := flag.NewFlagSet("vesctel", flag.ContinueOnError)
	flagConfig := flagset.String("config", "vesctel.hcl", "")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "usage: vesctel [-config=vesctel.hcl] command\n%s", subcmd.Usage(modules))
		flagset.PrintDefaults()
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	mod, err := subcmd.Parse(flagset.Arg(0), modules)
	if err != nil {
		flagset.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	log.Debugf("starting command %s", mod.Name)

	ctx, g := state_new.NewContext(log, tele.New(state.TeleCommand))
	g.BuildVersion = BuildVersion

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
