package kfmt

import (
	"bytes"
	"testing"

	"github.com/calint/uefi-os/cpu"
	"github.com/calint/uefi-os/kernel"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		sink = nil
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	var out bytes.Buffer
	SetOutputSink(&out)

	cpuHaltCalled = false
	out.Reset()
	Panic(&kernel.Error{Module: "test", Message: "panic test"})

	exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: core halted ***\n-----------------------------------\n"
	if got := out.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	if !cpuHaltCalled {
		t.Fatal("expected cpu.Halt() to be called by Panic")
	}
}

func TestPanicString(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		sink = nil
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	var out bytes.Buffer
	SetOutputSink(&out)

	PanicString("boot", "out of conventional memory")

	exp := "\n-----------------------------------\n[boot] unrecoverable error: out of conventional memory\n*** kernel panic: core halted ***\n-----------------------------------\n"
	if got := out.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	if !cpuHaltCalled {
		t.Fatal("expected cpu.Halt() to be called by PanicString")
	}
}
