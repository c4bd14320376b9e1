package main

import (
	"encoding/binary"

	"github.com/calint/uefi-os/firmware"
	"github.com/calint/uefi-os/kernel"
	"github.com/calint/uefi-os/kernel/mem"
	"github.com/calint/uefi-os/kernel/mem/pmm"
	"github.com/calint/uefi-os/kernel/mem/vmm"
)

// UEFI memory descriptor types this kernel distinguishes; every other
// reported type (ReservedMemoryType, UnusableMemory, PalCode, and the
// vendor-specific ranges above MaxMemoryType) is left unmapped, matching
// C3's "the physical address space the kernel needs" scope rather than
// every address firmware happens to enumerate.
const (
	efiLoaderCode         = 1
	efiLoaderData         = 2
	efiBootServicesCode   = 3
	efiBootServicesData   = 4
	efiConventionalMemory = 7
	efiACPIReclaimMemory  = 9
	efiACPIMemoryNVS      = 10
	efiMemoryMappedIO     = 11
	efiMemoryMappedIOPort = 12
)

// efiDescriptorFixedSize is the fixed portion of EFI_MEMORY_DESCRIPTOR
// this kernel reads (Type, pad, PhysicalStart, VirtualStart,
// NumberOfPages, Attribute); firmware.MemoryMap.DescriptorSize is the
// authoritative stride and may exceed this if a later revision appends
// fields, per firmware.MemoryMap's own doc comment.
const efiDescriptorFixedSize = 40

// walkMemoryMap strides through mm.Buffer by mm.DescriptorSize, calling
// visit once per descriptor. It never allocates.
func walkMemoryMap(mm firmware.MemoryMap, visit func(kind uint32, physStart uintptr, pages uint64)) {
	stride := int(mm.DescriptorSize)
	if stride < efiDescriptorFixedSize {
		return
	}
	for off := 0; off+efiDescriptorFixedSize <= len(mm.Buffer); off += stride {
		d := mm.Buffer[off : off+efiDescriptorFixedSize]
		kind := binary.LittleEndian.Uint32(d[0:4])
		physStart := uintptr(binary.LittleEndian.Uint64(d[8:16]))
		pages := binary.LittleEndian.Uint64(d[24:32])
		visit(kind, physStart, pages)
	}
}

// conventionalRegions reduces mm to the pmm.Region list the bump
// allocator seeds itself from.
func conventionalRegions(mm firmware.MemoryMap) []pmm.Region {
	var regions []pmm.Region
	walkMemoryMap(mm, func(kind uint32, physStart uintptr, pages uint64) {
		regions = append(regions, pmm.Region{
			PhysStart:    physStart,
			NumPages:     pages,
			Conventional: kind == efiConventionalMemory,
		})
	})
	return regions
}

// mapFirmwareRegions identity-maps every descriptor whose type belongs to
// C3's "present + writable" class, and cache-disables the two
// memory-mapped-I/O descriptor types firmware itself enumerates (device
// BARs discovered via PCI, not the fixed LAPIC/I-O-APIC windows, which
// main.go maps separately since they never appear in the UEFI memory
// map).
func mapFirmwareRegions(mm firmware.MemoryMap) *kernel.Error {
	var mapErr *kernel.Error
	walkMemoryMap(mm, func(kind uint32, physStart uintptr, pages uint64) {
		if mapErr != nil {
			return
		}
		size := mem.Size(pages) * mem.PageSize

		switch kind {
		case efiConventionalMemory, efiLoaderCode, efiLoaderData,
			efiBootServicesCode, efiBootServicesData,
			efiACPIReclaimMemory, efiACPIMemoryNVS:
			if err := vmm.MapRange(physStart, size, vmm.FlagsNormal); err != nil {
				mapErr = err
			}
		case efiMemoryMappedIO, efiMemoryMappedIOPort:
			if err := vmm.MapRange(physStart, size, vmm.FlagsMMIO); err != nil {
				mapErr = err
			}
		}
	})
	return mapErr
}
