package irq

import (
	"reflect"
	"unsafe"

	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/cpu"
)

// gate is a single 16-byte IDT entry in the processor's own layout.
type gate struct {
	OffsetLow  uint16
	Selector   uint16
	IST        uint8
	TypeAttr   uint8
	OffsetMid  uint16
	OffsetHigh uint32
	reserved   uint32
}

// TypeAttr bits: present, DPL 00, type 1110 (64-bit interrupt gate).
const gateTypeInterrupt = 0x8E

func newGate(handler uintptr, selector uint16) gate {
	return gate{
		OffsetLow:  uint16(handler),
		Selector:   selector,
		IST:        0,
		TypeAttr:   gateTypeInterrupt,
		OffsetMid:  uint16(handler >> 16),
		OffsetHigh: uint32(handler >> 32),
	}
}

var idt [256]gate

// apIDT is the table every AP loads. It is never populated and is kept
// apart from idt, so an AP's InstallIDT leaves the bootstrap core's gates
// in place.
var apIDT [256]gate

// funcAddr returns the entry address of a no-argument function, suitable
// for use as an interrupt gate's target. Every entry point installed here
// is a package-level func declared without a body in this package and
// implemented in entry_amd64.s.
func funcAddr(fn func()) uintptr { return reflect.ValueOf(fn).Pointer() }

// timerEntry and keyboardEntry are the raw interrupt targets: they save
// the full register file and FPU/SSE state, call the matching dispatch
// function below, restore state and IRETQ.
func timerEntry()
func keyboardEntry()

// InstallIDT loads the IDT on the calling core. On the bootstrap core
// (bootstrap true) it populates the timer and keyboard gates; every AP
// loads a completely empty table instead, so that an AP touched by a
// stray interrupt before its own bring-up completes triple-faults rather
// than running a handler tuned for the bootstrap core's state.
func InstallIDT(bootstrap bool) {
	table := &apIDT
	if bootstrap {
		idt = [256]gate{}
		idt[config.VectorTimer] = newGate(funcAddr(timerEntry), config.SelectorCode)
		idt[config.VectorKeyboard] = newGate(funcAddr(keyboardEntry), config.SelectorCode)
		table = &idt
	}

	ptr := tablePointer{
		Limit: uint16(unsafe.Sizeof(*table) - 1),
		Base:  uintptr(unsafe.Pointer(&table[0])),
	}
	cpu.LoadIDT(uintptr(unsafe.Pointer(&ptr)))
}
