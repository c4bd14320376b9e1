package kfmt

import (
	"github.com/calint/uefi-os/cpu"
	"github.com/calint/uefi-os/kernel"
)

// cpuHaltFn is mocked by tests.
var cpuHaltFn = cpu.Halt

var errUnknownPanic = &kernel.Error{Module: "panic", Message: "unknown cause"}

// Panic prints err to the attached sink (or the early ring buffer) and halts
// the core. It never returns. Every bring-up phase that hits a fatal
// condition funnels through here rather than through the standard library's
// panic, which this kernel never installs a recover path for.
func Panic(err *kernel.Error) {
	Printf("\n-----------------------------------\n")
	Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	Printf("*** kernel panic: core halted ***\n")
	Printf("-----------------------------------\n")

	cpuHaltFn()
}

// PanicString is a convenience wrapper for call sites that have a bare
// message and no natural module name.
func PanicString(module, msg string) {
	Panic(&kernel.Error{Module: module, Message: msg})
}
