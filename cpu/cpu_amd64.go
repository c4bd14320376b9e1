// Package cpu provides the arch-specific primitives every other bring-up
// package is built on: port I/O, control/model-specific register access,
// descriptor table loads and CPU feature queries. Functions declared
// without a body are implemented in cpu_amd64.s.
package cpu

var cpuidFn = ID

// EnableInterrupts enables interrupt handling (STI).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling (CLI).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// Pause issues the PAUSE spin-wait hint.
func Pause()

// FlushTLBEntry flushes a single TLB entry for the given virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ActivePDT returns the physical address of the currently loaded PML4 (CR3).
func ActivePDT() uintptr

// SwitchPDT loads CR3 with the physical address of a new top-level page
// table and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ReadCR2 returns the faulting address recorded by the last page fault.
func ReadCR2() uint64

// ReadCR4 returns the current value of CR4.
func ReadCR4() uint64

// WriteCR4 writes a new value to CR4.
func WriteCR4(val uint64)

// ReadMSR reads the 64-bit value of the model-specific register at ecx=msr.
func ReadMSR(msr uint32) uint64

// WriteMSR writes a 64-bit value to the model-specific register at ecx=msr.
func WriteMSR(msr uint32, val uint64)

// RDTSC returns the current value of the time-stamp counter.
func RDTSC() uint64

// ID executes CPUID with EAX=leaf and returns the EAX/EBX/ECX/EDX results.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// LocalAPICID returns the value of bits 24-31 of the EBX register returned
// by CPUID leaf 1, which contains the initial local APIC ID of the core
// executing the instruction.
func LocalAPICID() uint8 {
	_, ebx, _, _ := cpuidFn(1)
	return uint8(ebx >> 24)
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortWriteWord writes a uint16 value to the requested port.
func PortWriteWord(port uint16, val uint16)

// PortWriteDword writes a uint32 value to the requested port.
func PortWriteDword(port uint16, val uint32)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8

// PortReadWord reads a uint16 value from the requested port.
func PortReadWord(port uint16) uint16

// PortReadDword reads a uint32 value from the requested port.
func PortReadDword(port uint16) uint32

// LoadGDT loads the GDT register from a {limit, base} descriptor and
// performs the register-load + far-return idiom needed to flush the code
// segment, reloading CS with codeSelector.
func LoadGDT(gdtPtr uintptr, codeSelector uint16)

// LoadIDT loads the IDT register from a {limit, base} descriptor.
func LoadIDT(idtPtr uintptr)

// LoadTaskRegisters reloads DS/ES/FS/GS/SS with dataSelector. Used once
// after LoadGDT on every core.
func LoadTaskRegisters(dataSelector uint16)

// EnablePAE sets CR4.PAE, required before entering long mode.
func EnablePAE()

// EnableLongModeAndPaging sets EFER.LME and then CR0.PG, loading pml4Addr
// into CR3 first. Used only by the bootstrap core when activating C3's
// final page tables; APs perform the analogous sequence inside the
// trampoline's own assembly rather than calling back into Go.
func EnableLongModeAndPaging(pml4Addr uintptr)
