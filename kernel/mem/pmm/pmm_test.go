package pmm

import (
	"testing"
	"unsafe"

	"github.com/calint/uefi-os/kernel"
	"github.com/calint/uefi-os/kernel/mem"
)

func resetHeap() {
	heap.start = 0
	heap.size = 0
	regions = nil
}

func TestInitPicksLargestConventionalRegion(t *testing.T) {
	defer resetHeap()

	err := Init([]Region{
		{PhysStart: 0x100000, NumPages: 4, Conventional: true},
		{PhysStart: 0x200000, NumPages: 64, Conventional: true},
		{PhysStart: 0x300000, NumPages: 1000, Conventional: false},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if heap.start != 0x200000 {
		t.Fatalf("expected heap to start at the larger region; got 0x%x", heap.start)
	}
	if heap.size != mem.Size(64)*mem.PageSize {
		t.Fatalf("expected heap size %d; got %d", mem.Size(64)*mem.PageSize, heap.size)
	}
}

func TestInitNoConventionalMemoryIsFatal(t *testing.T) {
	defer resetHeap()

	err := Init([]Region{{PhysStart: 0x100000, NumPages: 4, Conventional: false}})
	if err == nil {
		t.Fatal("expected an error when no conventional memory is available")
	}
}

func TestAllocatePagesAdvancesAndZeroes(t *testing.T) {
	defer resetHeap()

	buf := make([]byte, 8*mem.PageSize)
	for i := range buf {
		buf[i] = 0xAA
	}

	addr, err := allocatePagesFromBuf(buf, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := uintptr(0); i < uintptr(2*mem.PageSize); i++ {
		if *(*byte)(unsafe.Pointer(addr + i)) != 0 {
			t.Fatalf("expected allocated block to be zeroed at offset %d", i)
		}
	}

	if HeapRemaining() != mem.Size(6)*mem.PageSize {
		t.Fatalf("expected 6 pages remaining; got %d bytes", HeapRemaining())
	}
}

func TestAllocatePagesFailsOnUnderflow(t *testing.T) {
	defer resetHeap()

	buf := make([]byte, 2*mem.PageSize)
	if _, err := allocatePagesFromBuf(buf, 4); err == nil {
		t.Fatal("expected an out-of-memory error when requesting more pages than remain")
	}
}

func TestIsConventional(t *testing.T) {
	defer resetHeap()

	regions = []Region{
		{PhysStart: 0x0, NumPages: 2, Conventional: true},
		{PhysStart: 0x4000, NumPages: 4, Conventional: false},
	}

	if !IsConventional(0x1000) {
		t.Error("expected 0x1000 to be reported conventional")
	}
	if IsConventional(0x5000) {
		t.Error("expected 0x5000 (reserved region) to be reported non-conventional")
	}
	if IsConventional(0x100000) {
		t.Error("expected an address outside any region to be reported non-conventional")
	}
}

// allocatePagesFromBuf lets the allocator tests run on ordinary Go heap
// memory instead of a raw physical address, since there is no MMU identity
// map active under `go test`.
func allocatePagesFromBuf(buf []byte, n uint64) (uintptr, *kernel.Error) {
	heap.start = uintptr(unsafe.Pointer(&buf[0]))
	heap.size = mem.Size(len(buf))
	return AllocatePages(n)
}
