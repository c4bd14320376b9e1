// Package acpi locates the firmware's ACPI 2.0+ root pointer, follows the
// XSDT to the MADT, and walks the MADT's variable-length entries to build
// the bootstrap core's picture of the machine: which APIC IDs are usable
// cores, where the I/O APICs live, and which one serves the keyboard.
package acpi

import (
	"unsafe"

	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/firmware/acpi/table"
	"github.com/calint/uefi-os/kernel"
)

var (
	errMissingRSDP        = &kernel.Error{Module: "acpi", Message: "firmware configuration table has no ACPI 2.0+ root pointer"}
	errBadRSDP            = &kernel.Error{Module: "acpi", Message: "ACPI root pointer failed checksum or revision check"}
	errBadXSDT            = &kernel.Error{Module: "acpi", Message: "XSDT failed length or checksum check"}
	errMissingMADT        = &kernel.Error{Module: "acpi", Message: "XSDT has no MADT entry"}
	errBadTableChecksum   = &kernel.Error{Module: "acpi", Message: "ACPI table failed checksum"}
	errTooManyCores       = &kernel.Error{Module: "acpi", Message: "MADT reports more local APICs than CoreTable capacity"}
	errTooManyIOAPICs     = &kernel.Error{Module: "acpi", Message: "MADT reports more I/O APICs than the scratch list capacity"}
	errMalformedMADTEntry = &kernel.Error{Module: "acpi", Message: "MADT entry length overruns the table"}
)

// acpi2GUID is the ACPI 2.0 table GUID (EFI_ACPI_20_TABLE_GUID,
// 8868e871-e4f1-11d3-bc22-0080c73c8881), matched byte-by-byte against the
// firmware configuration table since the table array is not guaranteed to
// be 8-byte aligned for every entry.
var acpi2GUID = [16]byte{
	0x71, 0xe8, 0x68, 0x88,
	0xf1, 0xe4,
	0xd3, 0x11,
	0xbc, 0x22,
	0x00, 0x80, 0xc7, 0x3c, 0x88, 0x81,
}

// ConfigurationTableEntry mirrors one entry of the firmware's
// EFI_CONFIGURATION_TABLE array: a GUID identifying the table's contents
// followed by its physical address.
type ConfigurationTableEntry struct {
	GUID  [16]byte
	Table unsafe.Pointer
}

// IOAPIC describes one I/O APIC discovered in the MADT.
type IOAPIC struct {
	APICID  uint8
	Address uintptr
	GSIBase uint32
}

// Result is everything the rest of bring-up needs from ACPI: the usable
// core APIC IDs, the I/O APIC that serves the keyboard, and the local
// APIC's physical base address.
type Result struct {
	CoreAPICIDs   []uint8
	IOAPICs       []IOAPIC
	KeyboardGSI   uint32
	KeyboardFlags uint16
	LocalAPICAddr uintptr
	IOAPICAddr    uintptr
}

// Parse walks the firmware configuration table array looking for the ACPI
// 2.0+ root pointer, follows it to the XSDT, validates checksums, and
// parses the MADT it finds. The configuration table and every ACPI table
// it touches are read in place from firmware-owned memory; only the
// returned Result's ID and I/O APIC lists are allocated.
func Parse(configTable []ConfigurationTableEntry) (Result, *kernel.Error) {
	rsdp, err := locateRSDP(configTable)
	if err != nil {
		return Result{}, err
	}

	madt, err := locateMADT(rsdp)
	if err != nil {
		return Result{}, err
	}

	return parseMADT(madt)
}

func locateRSDP(configTable []ConfigurationTableEntry) (*table.ExtRSDPDescriptor, *kernel.Error) {
	for i := range configTable {
		if !guidEquals(configTable[i].GUID, acpi2GUID) {
			continue
		}

		rsdp := (*table.ExtRSDPDescriptor)(configTable[i].Table)
		if rsdp.Revision < 2 || rsdp.XSDTAddr == 0 {
			return nil, errBadRSDP
		}
		// The extended checksum covers the 36-byte ACPI 2.0 structure;
		// unsafe.Sizeof(*rsdp) is 40 because Go pads the struct to the
		// alignment of its uint64 XSDT address.
		const extRSDPSize = 36
		if !validChecksum(uintptr(unsafe.Pointer(rsdp)), extRSDPSize) {
			return nil, errBadRSDP
		}

		return rsdp, nil
	}

	return nil, errMissingRSDP
}

// guidEquals compares two GUIDs byte by byte rather than as a single
// 16-byte word comparison, since the configuration table array gives no
// alignment guarantee for its entries.
func guidEquals(a, b [16]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func locateMADT(rsdp *table.ExtRSDPDescriptor) (*table.MADT, *kernel.Error) {
	xsdtAddr := uintptr(rsdp.XSDTAddr)
	xsdt := (*table.SDTHeader)(unsafe.Pointer(xsdtAddr))

	if xsdt.Length < uint32(unsafe.Sizeof(table.SDTHeader{})) || (xsdt.Length-uint32(unsafe.Sizeof(table.SDTHeader{})))%8 != 0 {
		return nil, errBadXSDT
	}
	if !validChecksum(xsdtAddr, xsdt.Length) {
		return nil, errBadXSDT
	}

	headerSize := uint32(unsafe.Sizeof(table.SDTHeader{}))
	entries := (xsdt.Length - headerSize) / 8

	for i := uint32(0); i < entries; i++ {
		entryAddr := xsdtAddr + uintptr(headerSize) + uintptr(i)*8
		tableAddr := uintptr(*(*uint64)(unsafe.Pointer(entryAddr)))

		header := (*table.SDTHeader)(unsafe.Pointer(tableAddr))
		if string(header.Signature[:]) != "APIC" {
			continue
		}
		if !validChecksum(tableAddr, header.Length) {
			return nil, errBadTableChecksum
		}

		return (*table.MADT)(unsafe.Pointer(tableAddr)), nil
	}

	return nil, errMissingMADT
}

// validChecksum sums every byte of the table and reports whether it is
// zero, the checksum rule every ACPI table (including the RSDP) shares.
func validChecksum(tableAddr uintptr, length uint32) bool {
	var sum uint8
	for i := uint32(0); i < length; i++ {
		sum += *(*uint8)(unsafe.Pointer(tableAddr + uintptr(i)))
	}
	return sum == 0
}

func parseMADT(madt *table.MADT) (Result, *kernel.Error) {
	res := Result{
		LocalAPICAddr: config.DefaultLocalAPICAddr,
		IOAPICAddr:    config.DefaultIOAPICAddr,
		KeyboardGSI:   config.DefaultKeyboardGSI,
	}

	tableAddr := uintptr(unsafe.Pointer(madt))
	end := tableAddr + uintptr(madt.Length)
	p := tableAddr + unsafe.Sizeof(table.MADT{})

	for p < end {
		entryHdrSize := unsafe.Sizeof(table.MADTEntry{})
		if p+entryHdrSize > end {
			return Result{}, errMalformedMADTEntry
		}

		entry := (*table.MADTEntry)(unsafe.Pointer(p))
		if entry.Length < uint8(entryHdrSize) || p+uintptr(entry.Length) > end {
			return Result{}, errMalformedMADTEntry
		}

		payload := p + entryHdrSize

		switch entry.Type {
		case table.MADTEntryTypeLocalAPIC:
			lapic := (*table.MADTEntryLocalAPIC)(unsafe.Pointer(payload))
			if lapic.LocalAPICEnabled() || lapic.LocalAPICOnlineCapable() {
				if len(res.CoreAPICIDs) >= config.MaxCores {
					return Result{}, errTooManyCores
				}
				res.CoreAPICIDs = append(res.CoreAPICIDs, lapic.APICID)
			}

		case table.MADTEntryTypeIOAPIC:
			ioapic := (*table.MADTEntryIOAPIC)(unsafe.Pointer(payload))
			if len(res.IOAPICs) >= config.MaxIOAPICs {
				return Result{}, errTooManyIOAPICs
			}
			res.IOAPICs = append(res.IOAPICs, IOAPIC{
				APICID:  ioapic.APICID,
				Address: uintptr(ioapic.Address()),
				GSIBase: ioapic.SysInterruptBase(),
			})

		case table.MADTEntryTypeIntSrcOverride:
			iso := (*table.MADTEntryInterruptSrcOverride)(unsafe.Pointer(payload))
			if iso.IRQSrc == 1 {
				res.KeyboardGSI = iso.GlobalInterrupt()
				res.KeyboardFlags = translateISOFlags(iso.Flags())
			}

		case table.MADTEntryTypeLocalAPICAddrOverride:
			override := (*table.MADTEntryLocalAPICAddrOverride)(unsafe.Pointer(payload))
			res.LocalAPICAddr = uintptr(override.Address())
		}

		p += uintptr(entry.Length)
	}

	if ioapic := ioapicServing(res.IOAPICs, res.KeyboardGSI); ioapic != nil {
		res.IOAPICAddr = ioapic.Address
	}

	return res, nil
}

// translateISOFlags maps the ACPI MPS INTI polarity/trigger bits (bits 0-1
// and 2-3 of the Interrupt Source Override's flags) onto the I/O APIC
// redirection entry's own polarity (bit 13) and trigger (bit 15) bits.
func translateISOFlags(isoFlags uint16) uint16 {
	var out uint16

	if isoFlags&table.MPSIntPolarityActiveLow != 0 {
		out |= 1 << 13
	}
	if isoFlags&table.MPSIntTriggerLevel != 0 {
		out |= 1 << 15
	}

	return out
}

// ioapicServing returns a pointer to the I/O APIC entry whose GSIBase is
// the greatest value not exceeding gsi, or nil if none qualifies.
func ioapicServing(ioapics []IOAPIC, gsi uint32) *IOAPIC {
	var best *IOAPIC

	for i := range ioapics {
		if ioapics[i].GSIBase > gsi {
			continue
		}
		if best == nil || ioapics[i].GSIBase > best.GSIBase {
			best = &ioapics[i]
		}
	}

	return best
}
