// Package apic wraps the two MMIO interrupt-controller windows this
// kernel programs directly: the per-core local APIC and the shared I/O
// APIC. Both windows are mapped present, writable and cache-disabled by
// C3 before either type here is ever touched.
package apic

import "unsafe"

// Local APIC register offsets, in bytes from the LAPIC's MMIO base.
const (
	RegID         = 0x020
	RegEOI        = 0x0B0
	RegSVR        = 0x0F0
	RegICRLow     = 0x300
	RegICRHigh    = 0x310
	RegLVTTimer   = 0x320
	RegInitCount  = 0x380
	RegCurCount   = 0x390
	RegDivideConf = 0x3E0
)

// LVT timer bits.
const (
	lvtMasked   = 1 << 16
	lvtPeriodic = 1 << 17
)

// SVR bits.
const svrAPICEnable = 1 << 8

// LocalAPIC is a thin accessor over one core's LAPIC MMIO window.
type LocalAPIC struct {
	base uintptr
}

// NewLocalAPIC wraps the LAPIC MMIO window at base. The caller is
// responsible for having mapped it present, writable and cache-disabled.
func NewLocalAPIC(base uintptr) *LocalAPIC { return &LocalAPIC{base: base} }

func (l *LocalAPIC) read(reg uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(l.base + reg))
}

func (l *LocalAPIC) write(reg uintptr, val uint32) {
	*(*uint32)(unsafe.Pointer(l.base + reg)) = val
}

// ID returns this core's local APIC ID (bits 24-31 of the ID register).
func (l *LocalAPIC) ID() uint8 { return uint8(l.read(RegID) >> 24) }

// SendEOI writes the end-of-interrupt register, re-enabling delivery of
// same- or lower-priority interrupts.
func (l *LocalAPIC) SendEOI() { l.write(RegEOI, 0) }

// Enable programs the spurious-interrupt vector register with the APIC
// software-enable bit set.
func (l *LocalAPIC) Enable(spuriousVector uint8) {
	l.write(RegSVR, uint32(spuriousVector)|svrAPICEnable)
}

// SendIPI issues an inter-processor interrupt by writing the destination
// into the ICR high dword before the command dword into the low dword,
// the order INIT-SIPI-SIPI requires.
func (l *LocalAPIC) SendIPI(destAPICID uint8, command uint32) {
	l.write(RegICRHigh, uint32(destAPICID)<<24)
	l.write(RegICRLow, command)
}

// ICRBusy reports whether the delivery-status bit (bit 12) of the ICR low
// dword is still set, meaning the previous IPI has not yet been accepted.
func (l *LocalAPIC) ICRBusy() bool { return l.read(RegICRLow)&(1<<12) != 0 }

// SetTimerDivide programs the timer's divide-configuration register.
func (l *LocalAPIC) SetTimerDivide(val uint32) { l.write(RegDivideConf, val) }

// SetTimerVector programs the LVT timer entry. masked suppresses delivery
// (used during calibration); periodic selects periodic over one-shot mode.
func (l *LocalAPIC) SetTimerVector(vector uint8, periodic, masked bool) {
	val := uint32(vector)
	if periodic {
		val |= lvtPeriodic
	}
	if masked {
		val |= lvtMasked
	}
	l.write(RegLVTTimer, val)
}

// SetInitialCount loads the timer's initial count, starting it counting
// down (or, in periodic mode, arming the next period).
func (l *LocalAPIC) SetInitialCount(v uint32) { l.write(RegInitCount, v) }

// CurrentCount returns the timer's current countdown value.
func (l *LocalAPIC) CurrentCount() uint32 { return l.read(RegCurCount) }

// I/O APIC register offsets within its MMIO page: writing the register
// index to IOREGSEL, then reading/writing IOWIN, accesses the selected
// register.
const (
	ioRegSel = 0x00
	ioWin    = 0x10
)

// I/O APIC redirection-table register indices. Entry N's low dword lives
// at ioRedirTableBase+2N, its high dword at ioRedirTableBase+2N+1.
const ioRedirTableBase = 0x10

// IOAPIC is a thin accessor over one I/O APIC's MMIO window.
type IOAPIC struct {
	base uintptr
}

// NewIOAPIC wraps the I/O APIC MMIO window at base.
func NewIOAPIC(base uintptr) *IOAPIC { return &IOAPIC{base: base} }

func (io *IOAPIC) readReg(index uint8) uint32 {
	*(*uint32)(unsafe.Pointer(io.base + ioRegSel)) = uint32(index)
	return *(*uint32)(unsafe.Pointer(io.base + ioWin))
}

func (io *IOAPIC) writeReg(index uint8, val uint32) {
	*(*uint32)(unsafe.Pointer(io.base + ioRegSel)) = uint32(index)
	*(*uint32)(unsafe.Pointer(io.base + ioWin)) = val
}

// SetRedirection programs GSI gsi's redirection entry to fire vector on
// destAPICID with the given polarity/trigger flag bits (bit 13 polarity,
// bit 15 trigger, matching the MADT Interrupt Source Override encoding).
// gsi is relative to this I/O APIC's own gsi_base.
func (io *IOAPIC) SetRedirection(gsi uint32, vector uint8, flags uint16, destAPICID uint8) {
	low := uint32(vector) | uint32(flags)
	high := uint32(destAPICID) << 24

	index := uint8(ioRedirTableBase + gsi*2)
	io.writeReg(index, low)
	io.writeReg(index+1, high)
}
