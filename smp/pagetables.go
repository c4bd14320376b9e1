package smp

import (
	"unsafe"

	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/kernel/mem"
)

// Protected-mode page table entry flags. This is a throwaway, two-level
// table (PDPT + a single PD) built once and reused by every AP's stage-32
// leg; it only ever needs to cover the first 2 MiB, so it has no PML4 and
// no PT level at all, unlike the real identity map kernel/mem/vmm builds.
const (
	ptPresent  = 1 << 0
	ptWritable = 1 << 1
	ptHugePage = 1 << 7
)

// BuildProtectedModeTables zeroes and populates the fixed-address PDPT and
// PD an AP's 32-bit trampoline leg loads into CR3 before enabling paging,
// identity-mapping the first 2 MiB with a single huge page. That range
// covers both the trampoline blob at config.TrampolineAddr and these two
// tables themselves at config.ProtectedModePDPTAddr/PDAddr.
func BuildProtectedModeTables() {
	pdpt := tableAt(config.ProtectedModePDPTAddr)
	pd := tableAt(config.ProtectedModePDAddr)

	for i := range pdpt {
		pdpt[i] = 0
	}
	for i := range pd {
		pd[i] = 0
	}

	pdpt[0] = uint64(config.ProtectedModePDAddr) | ptPresent | ptWritable
	pd[0] = 0 | ptPresent | ptWritable | ptHugePage
}

func tableAt(phys uintptr) []uint64 {
	const entries = int(mem.PageSize) / 8
	return unsafe.Slice((*uint64)(unsafe.Pointer(phys)), entries)
}
