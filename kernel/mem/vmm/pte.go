package vmm

import "github.com/calint/uefi-os/kernel/mem"

// PageTableEntryFlag describes a flag bit that can be applied to a page
// table entry. The bit positions match the hardware layout, not an
// abstraction over it.
type PageTableEntryFlag uintptr

// Flags common to every paging level.
const (
	FlagPresent      PageTableEntryFlag = 1 << 0
	FlagRW           PageTableEntryFlag = 1 << 1
	FlagUser         PageTableEntryFlag = 1 << 2
	FlagWriteThrough PageTableEntryFlag = 1 << 3
	FlagCacheDisable PageTableEntryFlag = 1 << 4
	FlagAccessed     PageTableEntryFlag = 1 << 5
	FlagDirty        PageTableEntryFlag = 1 << 6 // PTE only
	FlagHugePage     PageTableEntryFlag = 1 << 7 // PS bit, PD/PDPT only
	FlagGlobal       PageTableEntryFlag = 1 << 8
	FlagNoExecute    PageTableEntryFlag = 1 << 63
)

// FlagWriteCombining4K is the PAT index-selector bit for a 4 KiB PTE. PTEs
// have no PS bit to collide with, so PAT reuses bit 7 at that level.
const FlagWriteCombining4K PageTableEntryFlag = 1 << 7

// FlagWriteCombiningHuge is the PAT index-selector bit for a 2 MiB PD (or
// 1 GiB PDPT) entry, where bit 7 is already the PS bit.
const FlagWriteCombiningHuge PageTableEntryFlag = 1 << 12

// ptePhysAddrMask isolates the physical address bits (12-51) of an entry,
// excluding the low flag bits and the NX bit.
const ptePhysAddrMask = uintptr(0x000f_ffff_ffff_f000)

// pageTableEntry is one 8-byte slot of a PML4/PDPT/PD/PT. The same
// representation is reused at every level; callers pick the right flag set
// for the level they're writing.
type pageTableEntry uint64

// HasFlags returns true if every bit in flags is set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return uintptr(pte)&uintptr(flags) == uintptr(flags)
}

// SetFlags ORs flags into the entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags clears flags from the entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// Address returns the physical address this entry points to.
func (pte pageTableEntry) Address() uintptr {
	return uintptr(pte) & ptePhysAddrMask
}

// SetAddress updates the physical address field, leaving flag bits intact.
func (pte *pageTableEntry) SetAddress(phys uintptr) {
	*pte = pageTableEntry((uintptr(*pte) &^ ptePhysAddrMask) | (phys & ptePhysAddrMask))
}

// entriesPerTable is fixed by the architecture: 512 eight-byte entries fill
// one 4 KiB table at every one of the four levels.
const entriesPerTable = int(mem.PageSize) / 8
