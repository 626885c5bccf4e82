package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/imroc/biu"
	"github.com/peterh/liner"
	cli "gopkg.in/urfave/cli.v1"
)

var stepCommand = cli.Command{
	Name:  "step",
	Usage: "interactive REPL driving a single GC instance one increment at a time",
	Action: func(ctx *cli.Context) error {
		g, err := newDemoGC(ctx.GlobalString(configFileFlag.Name))
		if err != nil {
			return err
		}

		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		fmt.Println("aerocore step -- commands: alloc <bytes>, increment <us>, collect, flags <addr>, quit")
		for {
			input, err := line.Prompt("aerocore> ")
			if err != nil {
				if err == liner.ErrPromptAborted || err.Error() == "EOF" {
					return nil
				}
				return err
			}
			line.AppendHistory(input)

			fields := strings.Fields(input)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "quit", "exit":
				return nil
			case "alloc":
				size := 32
				if len(fields) > 1 {
					size, _ = strconv.Atoi(fields[1])
				}
				addr, err := g.Allocate(size, nil)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				fmt.Printf("allocated at 0x%x\n", addr)
			case "increment":
				budget := 1000
				if len(fields) > 1 {
					budget, _ = strconv.Atoi(fields[1])
				}
				done, err := g.PerformIncrement(budget)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				fmt.Printf("phase=%v done=%v\n", g.CurrentPhase(), done)
			case "collect":
				g.RequestCollection()
				if err := g.Collect(); err != nil {
					fmt.Println("error:", err)
					continue
				}
				fmt.Println("collection complete")
			case "flags":
				fmt.Println("flags <addr> requires a live heap inspector not wired into this build; use gc-stats for aggregate counters")
				fmt.Println(biu.ToBinaryString(uint8(0)))
			default:
				fmt.Println("unknown command:", fields[0])
			}
		}
	},
}
