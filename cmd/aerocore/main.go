// Command aerocore is a small driver over the engine's runtime substrate:
// compiling a demo IR function to RISC-V machine code, running an IC and GC
// scenario, and inspecting live GC/IC state, either one-shot or through
// an interactive REPL.
package main

import (
	"fmt"
	"os"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/aerocore/aerocore/corelog"
)

var (
	gitCommit = ""
	gitDate   = ""

	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	debugFlag = cli.BoolFlag{
		Name:  "debug",
		Usage: "panic instead of self-repairing on a cache invariant violation",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "aerocore"
	app.Usage = "AeroCore runtime substrate driver"
	app.Version = fmt.Sprintf("0.1.0-%s-%s", gitCommit, gitDate)
	app.Flags = []cli.Flag{configFileFlag, debugFlag}
	app.Commands = []cli.Command{
		compileCommand,
		runCommand,
		gcStatsCommand,
		icStatsCommand,
		stepCommand,
	}

	if err := app.Run(os.Args); err != nil {
		corelog.Error("aerocore: fatal", "err", err)
		os.Exit(1)
	}
}
