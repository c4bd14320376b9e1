// Package irq installs the GDT and IDT, programs the LAPIC timer off a
// PIT calibration, masks the legacy PIC, and routes the keyboard GSI
// through the I/O APIC. Every interrupt entry saves the full general
// register file and the x87/SSE state (FXSAVE64) before calling back into
// Go; AVX upper halves are not saved.
package irq

import (
	"io"

	"github.com/calint/uefi-os/kernel/kfmt"
)

// Regs is a snapshot of the general-purpose registers at interrupt entry.
type Regs struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// DumpTo writes the register snapshot to w.
func (r *Regs) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
}

// Frame is the iret frame the CPU pushes automatically on interrupt entry.
type Frame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo writes the exception frame to w.
func (f *Frame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", f.RFlags)
}
