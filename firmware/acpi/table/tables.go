// Package table describes the on-disk layout of the ACPI structures this
// kernel reads: the root pointer, the table header every table shares, and
// the MADT records that drive core and interrupt-controller discovery.
//
// ACPI structures are byte-packed with no regard for Go's own alignment
// rules, so every MADT entry with a multi-byte field that would otherwise
// land on an odd offset stores that field as a byte array and decodes it
// with encoding/binary instead of letting the Go compiler insert padding
// a real firmware table does not have.
package table

import "encoding/binary"

// RSDPDescriptor is the ACPI 1.0 root system descriptor pointer, the
// entry-point that firmware's configuration table lists under the ACPI 2.0
// GUID.
type RSDPDescriptor struct {
	Signature [8]byte
	Checksum  uint8
	OEMID     [6]byte

	// Revision is 0 for ACPI 1.0, 2 for ACPI 2.0 and later.
	Revision uint8

	RSDTAddr uint32
}

// ExtRSDPDescriptor extends RSDPDescriptor with the ACPI 2.0+ fields,
// notably the 64-bit XSDT pointer this kernel actually follows.
type ExtRSDPDescriptor struct {
	RSDPDescriptor

	Length           uint32
	XSDTAddr         uint64
	ExtendedChecksum uint8

	reserved [3]byte
}

// SDTHeader is the common header shared by every ACPI table, including the
// XSDT itself and the MADT.
type SDTHeader struct {
	Signature [4]byte
	Length    uint32
	Revision  uint8
	Checksum  uint8

	OEMID       [6]byte
	OEMTableID  [8]byte
	OEMRevision uint32

	CreatorID       uint32
	CreatorRevision uint32
}

// MADT (Multiple APIC Description Table) describes the system's interrupt
// controllers and processors. A variable-length sequence of MADTEntry
// records follows the fixed header.
type MADT struct {
	SDTHeader

	LocalControllerAddress uint32
	Flags                  uint32
}

// MADTEntryLocalAPIC (type 0) describes one physical processor and its
// local APIC.
type MADTEntryLocalAPIC struct {
	ProcessorID uint8
	APICID      uint8
	flags       [4]byte
}

// Flags returns the processor-local APIC flags (bit 0 enabled, bit 1
// online-capable).
func (e MADTEntryLocalAPIC) Flags() uint32 { return binary.LittleEndian.Uint32(e.flags[:]) }

// LocalAPICEnabled reports whether bit 0 ("enabled") is set.
func (e MADTEntryLocalAPIC) LocalAPICEnabled() bool { return e.Flags()&0x1 != 0 }

// LocalAPICOnlineCapable reports whether bit 1 ("online capable") is set.
// A core that is online-capable but not yet enabled can still be brought
// up, per the ACPI spec's guidance for hot-pluggable processors.
func (e MADTEntryLocalAPIC) LocalAPICOnlineCapable() bool { return e.Flags()&0x2 != 0 }

// MADTEntryIOAPIC (type 1) describes one I/O APIC.
type MADTEntryIOAPIC struct {
	APICID   uint8
	reserved uint8

	address          [4]byte
	sysInterruptBase [4]byte
}

// Address returns the I/O APIC's MMIO base address.
func (e MADTEntryIOAPIC) Address() uint32 { return binary.LittleEndian.Uint32(e.address[:]) }

// SysInterruptBase returns the first GSI this I/O APIC is responsible for.
func (e MADTEntryIOAPIC) SysInterruptBase() uint32 {
	return binary.LittleEndian.Uint32(e.sysInterruptBase[:])
}

// MADTEntryInterruptSrcOverride (type 2) remaps a legacy ISA IRQ to a
// global system interrupt with its own polarity/trigger mode.
type MADTEntryInterruptSrcOverride struct {
	BusSrc          uint8
	IRQSrc          uint8
	globalInterrupt [4]byte
	flags           [2]byte
}

// GlobalInterrupt returns the GSI this ISA IRQ is remapped to.
func (e MADTEntryInterruptSrcOverride) GlobalInterrupt() uint32 {
	return binary.LittleEndian.Uint32(e.globalInterrupt[:])
}

// Flags returns the MPS INTI polarity/trigger bits.
func (e MADTEntryInterruptSrcOverride) Flags() uint16 {
	return binary.LittleEndian.Uint16(e.flags[:])
}

// Bits of the MPS INTI flags carried by MADTEntryInterruptSrcOverride.Flags
// and MADTEntryNMI.Flags: polarity in bits 0-1, trigger mode in bits 2-3.
// This is not the I/O APIC redirection-entry layout; the parser translates
// these bits onto the redirection entry's polarity (bit 13) and trigger
// (bit 15) fields.
const (
	MPSIntPolarityActiveLow = 1 << 1
	MPSIntTriggerLevel      = 1 << 3
)

// MADTEntryNMI (type 4) configures a non-maskable interrupt line on one or
// all processors.
type MADTEntryNMI struct {
	Processor uint8
	flags     [2]byte
	LINT      uint8
}

// Flags returns the MPS INTI polarity/trigger bits for this NMI line.
func (e MADTEntryNMI) Flags() uint16 { return binary.LittleEndian.Uint16(e.flags[:]) }

// MADTEntryLocalAPICAddrOverride (type 5) overrides the default local APIC
// physical base address of 0xFEE00000 with a 64-bit address.
type MADTEntryLocalAPICAddrOverride struct {
	reserved [2]byte
	address  [8]byte
}

// Address returns the overriding local APIC physical base address.
func (e MADTEntryLocalAPICAddrOverride) Address() uint64 {
	return binary.LittleEndian.Uint64(e.address[:])
}

// MADTEntryType identifies which of the above records a MADTEntry header
// introduces.
type MADTEntryType uint8

// The MADT entry types this kernel understands. Others (local x2APIC,
// platform interrupt sources, and so on) are skipped by length during the
// MADT walk.
const (
	MADTEntryTypeLocalAPIC            MADTEntryType = 0
	MADTEntryTypeIOAPIC               MADTEntryType = 1
	MADTEntryTypeIntSrcOverride       MADTEntryType = 2
	MADTEntryTypeNMI                  MADTEntryType = 4
	MADTEntryTypeLocalAPICAddrOverride MADTEntryType = 5
)

// MADTEntry is the variable-length record header that precedes every MADT
// entry; Length covers the header itself plus the type-specific payload
// that follows it in memory.
type MADTEntry struct {
	Type   MADTEntryType
	Length uint8
}
