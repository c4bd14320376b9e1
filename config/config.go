// Package config collects the build-time constants that tie the platform
// bring-up packages together. They are grouped here, one block per concern,
// the way the teacher keeps arch constants in small dedicated files instead
// of a single settings struct.
package config

// Low-memory physical addresses reserved by the SMP trampoline. They are
// constants of the design: real mode can only execute below 1 MiB and the
// SIPI vector format requires the destination to be 4 KiB aligned and
// expressible in 8 bits (addr>>12 <= 0xff).
const (
	TrampolineAddr    = uintptr(0x8000)
	TrampolineMaxSize = uintptr(0x10000 - 0x8000)

	ProtectedModePDPTAddr = uintptr(0x10000)
	ProtectedModePDAddr   = uintptr(0x11000)
)

// Default MMIO addresses. Overridden by MADT entries when present.
const (
	DefaultLocalAPICAddr = uintptr(0xFEE00000)
	DefaultIOAPICAddr    = uintptr(0xFEC00000)
	DefaultKeyboardGSI   = uint32(1)
)

// Interrupt vectors. 0-31 are reserved for CPU exceptions and are not
// handled by this kernel.
const (
	VectorTimer    = uint8(32)
	VectorKeyboard = uint8(33)

	// VectorSpurious is programmed into the local APIC's SVR. Intel's SDM
	// recommends the low nibble be all-ones on APICs that hardwire it, so
	// 0xFF avoids relying on any particular vector's low bits.
	VectorSpurious = uint8(0xFF)
)

// GDT selector indices, expressed in bytes (index*8) the way segment
// selectors are loaded by hardware.
const (
	SelectorNull = uint16(0x00)
	SelectorCode = uint16(0x08)
	SelectorData = uint16(0x10)
)

// TimerHz is the steady-state periodic firing rate of the LAPIC timer once
// calibration completes.
const TimerHz = 2

// MaxCores bounds the CoreTable capacity; exceeding it during MADT parsing
// is a fatal firmware-handoff error.
const MaxCores = 256

// MaxIOAPICs bounds the scratch list populated while scanning the MADT.
const MaxIOAPICs = 8

// JobQueueSlots is the SPMC ring depth. Must be a power of two.
const JobQueueSlots = 256

// CacheLineSize is the coherency unit job-queue slots and the queue's own
// head/tail/completed counters are padded to avoid false sharing across.
const CacheLineSize = 64

// CoreStackSizePages sizes each application processor's private stack:
// 2MiB, matching original_source/src/config.hpp's CORE_STACK_SIZE_PAGES.
const CoreStackSizePages = 2 * 1024 * 1024 / 4096

// Serial diagnostics port and its nominal 38400 8-N-1 line rate. The UART
// driver is initialized with its own default rate; SerialBaud is not
// programmed into it.
const (
	SerialPort  = 0x3F8
	SerialBaud  = 38400
)

// Legacy PS/2 and PIC I/O ports.
const (
	PS2DataPort    = 0x60
	PS2StatusPort  = 0x64
	PS2CommandPort = 0x64

	PICMasterCommand = 0x20
	PICMasterData    = 0x21
	PICSlaveCommand  = 0xA0
	PICSlaveData     = 0xA1

	PITChannel0Data = 0x40
	PITCommand      = 0x43
)
