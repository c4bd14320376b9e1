// Package pmm implements the bump allocator that hands out physical memory
// before any more capable allocator exists. It never frees: once a block is
// handed out, the caller owns it for the remainder of the boot.
package pmm

import (
	"github.com/calint/uefi-os/kernel"
	"github.com/calint/uefi-os/kernel/mem"
)

var errOutOfMemory = &kernel.Error{Module: "pmm", Message: "heap exhausted"}

// Region describes one entry of the firmware-reported memory map, reduced to
// the fields the allocator and C3's reserved-address check need.
type Region struct {
	PhysStart    uintptr
	NumPages     uint64
	Conventional bool
}

// heap is the single contiguous block the allocator hands pages out of. It
// is seeded once by Init from the largest conventional region and then only
// ever shrinks from the front.
var heap struct {
	start uintptr
	size  mem.Size
}

// regions retains the full firmware memory map so IsConventional can answer
// for addresses outside the chosen heap, such as the trampoline pages.
var regions []Region

// Init selects the largest conventional-memory region reported by firmware,
// aligning its bounds in to the nearest page boundaries, and adopts it as
// the heap. Regions is retained verbatim for later IsConventional queries.
func Init(rs []Region) *kernel.Error {
	regions = rs

	var bestStart uintptr
	var bestPages uint64

	for _, r := range rs {
		if !r.Conventional {
			continue
		}

		alignedStart := alignUp(r.PhysStart, uintptr(mem.PageSize))
		end := r.PhysStart + uintptr(r.NumPages)*uintptr(mem.PageSize)
		alignedEnd := alignDown(end, uintptr(mem.PageSize))
		if alignedEnd <= alignedStart {
			continue
		}

		pages := uint64(alignedEnd-alignedStart) / uint64(mem.PageSize)
		if pages > bestPages {
			bestPages = pages
			bestStart = alignedStart
		}
	}

	if bestPages == 0 {
		return errOutOfMemory
	}

	heap.start = bestStart
	heap.size = mem.Size(bestPages) * mem.PageSize
	return nil
}

// AllocatePages returns a zeroed, page-aligned block of n pages, advancing
// the heap pointer and shrinking its remaining size. Returns errOutOfMemory
// if fewer than n pages remain; the caller is expected to treat that as
// fatal via kfmt.Panic.
func AllocatePages(n uint64) (uintptr, *kernel.Error) {
	need := mem.Size(n) * mem.PageSize
	if need == 0 || need > heap.size {
		return 0, errOutOfMemory
	}

	addr := heap.start
	heap.start += uintptr(need)
	heap.size -= need

	kernel.Memset(addr, 0, uintptr(need))
	return addr, nil
}

// HeapRemaining reports the number of bytes still available for allocation.
func HeapRemaining() mem.Size {
	return heap.size
}

// IsConventional reports whether addr falls inside a region firmware
// reported as conventional memory. Used by C3 to verify the fixed
// trampoline addresses are safe to identity-map and reuse.
func IsConventional(addr uintptr) bool {
	for _, r := range regions {
		start := r.PhysStart
		end := start + uintptr(r.NumPages)*uintptr(mem.PageSize)
		if r.Conventional && addr >= start && addr < end {
			return true
		}
	}
	return false
}

func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

func alignDown(addr, align uintptr) uintptr {
	return addr &^ (align - 1)
}
