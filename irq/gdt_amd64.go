package irq

import (
	"unsafe"

	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/cpu"
)

// descriptor is a single 64-bit GDT entry. The field order and widths
// below match the processor's own layout exactly, so the struct can be
// loaded into LGDT without any repacking.
type descriptor struct {
	LimitLow  uint16
	BaseLow   uint16
	BaseMid   uint8
	Access    uint8
	LimitHigh uint8 // limit bits 16-19 in the low nibble, flags in the high nibble
	BaseHigh  uint8
}

// Access byte bits.
const (
	accessPresent   = 1 << 7
	accessDescType  = 1 << 4 // S: 1 for code/data, 0 for system
	accessExecute   = 1 << 3
	accessReadWrite = 1 << 1
)

// LimitHigh flags-nibble bits.
const flagLongMode = 1 << 5

func newDescriptor(base, limit uint32, access, flags uint8) descriptor {
	return descriptor{
		LimitLow:  uint16(limit & 0xFFFF),
		BaseLow:   uint16(base & 0xFFFF),
		BaseMid:   uint8(base >> 16),
		Access:    access,
		LimitHigh: uint8((limit>>16)&0x0F) | (flags & 0xF0),
		BaseHigh:  uint8(base >> 24),
	}
}

// gdt is the fixed, 3-entry global descriptor table: null, a 64-bit ring-0
// code segment and a ring-0 data segment. There is exactly one GDT, shared
// by every core, since long mode ignores segment base/limit entirely, so
// no per-core descriptor is needed.
var gdt = [3]descriptor{
	{}, // null, index 0
	newDescriptor(0, 0, accessPresent|accessDescType|accessExecute|accessReadWrite, flagLongMode),
	newDescriptor(0, 0, accessPresent|accessDescType|accessReadWrite, 0),
}

type tablePointer struct {
	Limit uint16
	Base  uintptr
}

// InstallGDT loads the GDT on the calling core and reloads every data
// segment register. Every core, bootstrap and AP alike, calls this with
// the same table.
func InstallGDT() {
	ptr := tablePointer{
		Limit: uint16(unsafe.Sizeof(gdt) - 1),
		Base:  uintptr(unsafe.Pointer(&gdt[0])),
	}
	cpu.LoadGDT(uintptr(unsafe.Pointer(&ptr)), config.SelectorCode)
	cpu.LoadTaskRegisters(config.SelectorData)
}
