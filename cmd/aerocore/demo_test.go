package main

import (
	"testing"

	"github.com/aerocore/aerocore/ir"
	"github.com/aerocore/aerocore/object"
)

var _ object.Object = (*demoObject)(nil)

func TestBuildAddFunctionVerifies(t *testing.T) {
	fn := buildAddFunction()
	if errs := ir.Verify(fn); len(errs) != 0 {
		t.Fatalf("Verify() = %v, want none", errs)
	}
}

func TestBuildDivFunctionVerifies(t *testing.T) {
	fn := buildDivFunction()
	if errs := ir.Verify(fn); len(errs) != 0 {
		t.Fatalf("Verify() = %v, want none", errs)
	}
}

func TestRunScenarioCompletes(t *testing.T) {
	if err := runScenario(""); err != nil {
		t.Fatalf("runScenario: %v", err)
	}
}
