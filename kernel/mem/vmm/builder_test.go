package vmm

import (
	"testing"
	"unsafe"

	"github.com/calint/uefi-os/kernel"
	"github.com/calint/uefi-os/kernel/mem"
)

// resetTables clears the PML4 and installs a fake table allocator backed by
// a plain Go slice pool, since there is no real bump allocator or identity
// map active under `go test`.
func resetTables(t *testing.T) {
	for i := range pml4Storage {
		pml4Storage[i] = 0
	}

	var pool [][]byte
	allocTableFn = func() (uintptr, *kernel.Error) {
		buf := make([]byte, mem.PageSize)
		pool = append(pool, buf)
		return uintptr(unsafe.Pointer(&buf[0])), nil
	}
	t.Cleanup(func() { allocTableFn = func() (uintptr, *kernel.Error) { return 0, nil } })
}

func TestMapRangeUsesHugePagesWhenAligned(t *testing.T) {
	resetTables(t)

	if err := MapRange(0, mem.Size(twoMiB), FlagsNormal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pde := tableEntry(mustTable(t, tableEntry(mustTable(t, tableEntry(pml4Base(), 0)), 0)), 0)
	if !pde.HasFlags(FlagPresent | FlagHugePage) {
		t.Fatalf("expected a present huge page entry at PD index 0")
	}
}

func TestMapRangeFallsBackTo4KWhenMisaligned(t *testing.T) {
	resetTables(t)

	if err := MapRange(0, mem.PageSize, FlagsNormal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pdAddr := mustTable(t, tableEntry(mustTable(t, tableEntry(pml4Base(), 0)), 0))
	pde := tableEntry(pdAddr, 0)
	if pde.HasFlags(FlagHugePage) {
		t.Fatal("expected a 4 KiB mapping, not a huge page, for a single page")
	}

	ptAddr := pde.Address()
	pte := tableEntry(ptAddr, 0)
	if !pte.HasFlags(FlagPresent) {
		t.Fatal("expected the PTE to be present")
	}
}

func TestMapRangeIsIdempotentWithSameFlags(t *testing.T) {
	resetTables(t)

	if err := MapRange(0, mem.Size(twoMiB), FlagsNormal); err != nil {
		t.Fatalf("unexpected error on first map: %v", err)
	}
	if err := MapRange(0, mem.Size(twoMiB), FlagsNormal); err != nil {
		t.Fatalf("expected re-mapping with identical flags to succeed: %v", err)
	}
}

func TestMapRangeConflictsOnDifferentFlags(t *testing.T) {
	resetTables(t)

	if err := MapRange(0, mem.Size(twoMiB), FlagsNormal); err != nil {
		t.Fatalf("unexpected error on first map: %v", err)
	}
	if err := MapRange(0, mem.Size(twoMiB), FlagsMMIO); err == nil {
		t.Fatal("expected conflicting flags on an existing huge page to be fatal")
	}
}

func TestMapRangeFramebufferUsesPATIndex4(t *testing.T) {
	resetTables(t)

	if err := MapRange(0, mem.PageSize, FlagsFramebuffer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pdAddr := mustTable(t, tableEntry(mustTable(t, tableEntry(pml4Base(), 0)), 0))
	pde := tableEntry(pdAddr, 0)
	ptAddr := pde.Address()
	pte := tableEntry(ptAddr, 0)

	if !pte.HasFlags(FlagWriteCombining4K) {
		t.Fatal("expected the 4 KiB framebuffer entry to carry the bit-7 PAT selector")
	}
}

func mustTable(t *testing.T, pte *pageTableEntry) uintptr {
	if !pte.HasFlags(FlagPresent) {
		t.Fatal("expected intermediate table to be present")
	}
	return pte.Address()
}
