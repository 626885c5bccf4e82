package main

import (
	"encoding/hex"
	"fmt"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/aerocore/aerocore/ir"
)

var compileCommand = cli.Command{
	Name:  "compile",
	Usage: "compile a built-in demo IR function and print the emitted machine code",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "fn", Value: "add", Usage: "which demo function to compile: add, safe_div"},
	},
	Action: runCompile,
}

func runCompile(ctx *cli.Context) error {
	var fn *ir.Function
	switch name := ctx.String("fn"); name {
	case "add":
		fn = buildAddFunction()
	case "safe_div":
		fn = buildDivFunction()
	default:
		return fmt.Errorf("unknown demo function %q (want add or safe_div)", name)
	}

	if errs := ir.Verify(fn); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("verify error: %s\n", e.Message)
		}
		return fmt.Errorf("ir verification failed")
	}

	gen, _, err := newDemoGenerator()
	if err != nil {
		return err
	}
	code, err := gen.Compile(fn, demoSymbols{})
	if err != nil {
		return err
	}

	fmt.Printf("function %q compiled: %d bytes\n", fn.Name, code.Buffer.Len())
	fmt.Println(hex.Dump(code.Buffer.Bytes()))
	return nil
}
