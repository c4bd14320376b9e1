package smp

// descriptor32 is the same 8-byte GDT entry shape the kernel's own irq
// package uses, duplicated here because the trampoline's GDT is a
// throwaway table local to the real-mode/protected-mode legs of AP
// bring-up: it never coexists with the kernel's permanent GDT and has no
// reason to share its type.
type descriptor32 struct {
	LimitLow  uint16
	BaseLow   uint16
	BaseMid   uint8
	Access    uint8
	LimitHigh uint8
	BaseHigh  uint8
}

const (
	access32Present  = 1 << 7
	access32DescType = 1 << 4
	access32Execute  = 1 << 3
	access32RW       = 1 << 1

	flag32Granularity = 1 << 7 // limit is in 4 KiB units
	flag32Size32      = 1 << 6 // D/B: 32-bit operand/stack default
	flag32LongMode    = 1 << 5 // L: 64-bit code segment
)

func newDescriptor32(limit uint32, access, flags uint8) descriptor32 {
	return descriptor32{
		LimitLow:  uint16(limit & 0xFFFF),
		LimitHigh: uint8((limit>>16)&0x0F) | (flags & 0xF0),
		Access:    access,
	}
}

// Trampoline selector indices, in bytes.
const (
	trampolineSelectorCode32 = uint16(0x08)
	trampolineSelectorData32 = uint16(0x10)
	trampolineSelectorCode64 = uint16(0x18)
)

// trampolineGDT is a flat 4GiB code/data setup for the protected-mode leg
// plus the 64-bit code segment the final far jump into long mode targets.
// Base addresses are all zero: the trampoline, the minimal page tables it
// loads, and this GDT itself all live in the identity-mapped low 1MiB, so
// "flat" and "identity" coincide and no segment relocation is needed.
var trampolineGDT = [4]descriptor32{
	{},
	newDescriptor32(0xFFFFF, access32Present|access32DescType|access32Execute|access32RW, flag32Granularity|flag32Size32),
	newDescriptor32(0xFFFFF, access32Present|access32DescType|access32RW, flag32Granularity|flag32Size32),
	newDescriptor32(0, access32Present|access32DescType|access32Execute|access32RW, flag32LongMode),
}
