package vmm

import (
	"unsafe"

	"github.com/calint/uefi-os/kernel"
	"github.com/calint/uefi-os/kernel/mem"
	"github.com/calint/uefi-os/kernel/mem/pmm"
)

// Bit positions of the four paging-level indices inside a virtual (here,
// identity-mapped so also physical) address.
const (
	shiftPML4 = 39
	shiftPDPT = 30
	shiftPD   = 21
	shiftPT   = 12
	indexMask = 0x1ff

	twoMiB = uintptr(2 * 1024 * 1024)
)

// FlagWriteCombining is a logical, not a hardware, bit: mapOrCheck
// translates it to bit 7 or bit 12 depending on whether the entry being
// written is a 4 KiB PTE or a 2 MiB PD entry. It must not collide with any
// real flag bit above, so it borrows an address bit far above anything x86
// paging uses.
const FlagWriteCombining PageTableEntryFlag = 1 << 61

// Named flag presets, one per memory class in the mapping policy table.
const (
	FlagsNormal      = FlagPresent | FlagRW
	FlagsMMIO        = FlagPresent | FlagRW | FlagCacheDisable
	FlagsFramebuffer = FlagPresent | FlagRW | FlagWriteCombining
)

var errConflictingFlags = &kernel.Error{Module: "vmm", Message: "range already mapped with different flags"}

// allocTableFn allocates and zeroes one page to back a new PDPT/PD/PT. It
// is swapped out in tests so table allocation doesn't depend on pmm's
// global heap state.
var allocTableFn = func() (uintptr, *kernel.Error) {
	return pmm.AllocatePages(1)
}

// pml4Storage backs the top-level page table. It is oversized by one page
// so pml4Base can carve out a page-aligned 4 KiB region at runtime: nothing
// in this freestanding binary guarantees the data section itself starts on
// a page boundary.
var pml4Storage [2 * int(mem.PageSize)]byte

func pml4Base() uintptr {
	addr := uintptr(unsafe.Pointer(&pml4Storage[0]))
	return (addr + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
}

// PML4Addr returns the physical address of the top-level page table
// MapRange builds into. C5 loads it into every AP's CR3 during the
// trampoline's long-mode transition, and C1's entry point loads it into
// the bootstrap core's CR3 the same way via cpu.EnableLongModeAndPaging.
func PML4Addr() uintptr { return pml4Base() }

func tableEntry(base uintptr, index uintptr) *pageTableEntry {
	return (*pageTableEntry)(unsafe.Pointer(base + index*8))
}

// ensureTable returns the physical address of the table parent points to,
// allocating and wiring one in if parent is not yet present.
func ensureTable(parent *pageTableEntry) (uintptr, *kernel.Error) {
	if parent.HasFlags(FlagPresent) {
		return parent.Address(), nil
	}

	addr, err := allocTableFn()
	if err != nil {
		return 0, err
	}

	parent.SetAddress(addr)
	parent.SetFlags(FlagPresent | FlagRW)
	return addr, nil
}

// MapRange identity-maps [phys, phys+size) with flags, using 2 MiB huge
// pages wherever both the current address and the remaining length are
// 2 MiB-aligned and falling back to 4 KiB pages otherwise. Re-mapping an
// already-mapped range with identical flags is a no-op; mapping it with
// different flags is fatal.
func MapRange(phys uintptr, size mem.Size, flags PageTableEntryFlag) *kernel.Error {
	addr := phys
	remaining := uintptr(size)

	for remaining > 0 {
		pml4Idx := (addr >> shiftPML4) & indexMask
		pdptIdx := (addr >> shiftPDPT) & indexMask
		pdIdx := (addr >> shiftPD) & indexMask

		pdptAddr, err := ensureTable(tableEntry(pml4Base(), pml4Idx))
		if err != nil {
			return err
		}

		pdAddr, err := ensureTable(tableEntry(pdptAddr, pdptIdx))
		if err != nil {
			return err
		}

		pde := tableEntry(pdAddr, pdIdx)

		if addr%twoMiB == 0 && remaining >= twoMiB {
			if err := mapOrCheck(pde, addr, flags, true); err != nil {
				return err
			}
			addr += twoMiB
			remaining -= twoMiB
			continue
		}

		if pde.HasFlags(FlagPresent) && pde.HasFlags(FlagHugePage) {
			return errConflictingFlags
		}

		ptAddr, err := ensureTable(pde)
		if err != nil {
			return err
		}

		ptIdx := (addr >> shiftPT) & indexMask
		if err := mapOrCheck(tableEntry(ptAddr, ptIdx), addr, flags, false); err != nil {
			return err
		}

		addr += uintptr(mem.PageSize)
		remaining -= uintptr(mem.PageSize)
	}

	return nil
}

// mapOrCheck writes addr and the hardware translation of flags into pte, or,
// if pte is already present, verifies the existing entry matches exactly.
func mapOrCheck(pte *pageTableEntry, addr uintptr, flags PageTableEntryFlag, huge bool) *kernel.Error {
	hw := flags &^ FlagWriteCombining
	if flags&FlagWriteCombining != 0 {
		if huge {
			hw |= FlagWriteCombiningHuge
		} else {
			hw |= FlagWriteCombining4K
		}
	}
	if huge {
		hw |= FlagHugePage
	}

	wanted := pageTableEntry(addr&ptePhysAddrMask) | pageTableEntry(hw)

	if pte.HasFlags(FlagPresent) {
		if *pte == wanted {
			return nil
		}
		return errConflictingFlags
	}

	*pte = wanted
	return nil
}
