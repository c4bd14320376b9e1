// Package smp brings up every application processor the firmware reported
// besides the bootstrap core: it builds the self-relocating real-to-long
// mode trampoline once, then walks the ACPI core list issuing an
// INIT-SIPI-SIPI sequence to each APIC ID in turn, waiting for the
// previous AP to signal it has reached long mode before starting the
// next.
package smp

import (
	"unsafe"

	"github.com/calint/uefi-os/apic"
	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/irq"
	"github.com/calint/uefi-os/kernel"
	"github.com/calint/uefi-os/kernel/mem"
	"github.com/calint/uefi-os/kernel/mem/pmm"
)

// ICR command encodings for the INIT and SIPI delivery modes, §4.5.
const (
	icrInit = 0x00004500
	icrSIPI = 0x00004600
)

var delayMicrosFn = irq.DelayMicros

// LaunchAll brings up every core APIC ID in cores except bootstrapAPICID,
// dispatching each with the INIT-SIPI-SIPI sequence and waiting for it to
// signal startedFlag before moving to the next. pml4 is the long-mode
// PML4 built by C3; each AP calls apEntry once it reaches long mode with
// its own private stack, which in turn invokes APMain.
func LaunchAll(lapic *apic.LocalAPIC, cores []uint8, bootstrapAPICID uint8, pml4 uintptr) *kernel.Error {
	BuildProtectedModeTables()

	blob, _ := Build()
	trampoline := trampolineAt()
	copy(trampoline, blob)

	taskEntry := uint64(funcAddr(apEntry))
	sipiVector := uint8((config.TrampolineAddr >> 12) & 0xFF)

	for _, apicID := range cores {
		if apicID == bootstrapAPICID {
			continue
		}

		stackTop, err := allocateStack()
		if err != nil {
			return err
		}

		WriteConfig(trampoline, TrampolineConfig{
			ProtectedModePDPT: uint64(config.ProtectedModePDPTAddr),
			StackTop:          uint64(stackTop),
			TaskEntry:         taskEntry,
			LongModePML4:      uint64(pml4),
		})

		startedFlag.Store(0)

		dispatchAP(lapic, apicID, sipiVector)

		for startedFlag.Load() == 0 {
		}
	}

	return nil
}

// trampolineAt returns the trampoline blob's fixed physical destination as
// a writable byte slice, sized to the window reserved for it.
func trampolineAt() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(config.TrampolineAddr)), int(config.TrampolineMaxSize))
}

// dispatchAP issues the INIT, then the double SIPI, per §4.5's timing.
func dispatchAP(lapic *apic.LocalAPIC, apicID uint8, sipiVector uint8) {
	lapic.SendIPI(apicID, icrInit)
	for lapic.ICRBusy() {
	}
	delayMicrosFn(10_000)

	lapic.SendIPI(apicID, icrSIPI|uint32(sipiVector))
	for lapic.ICRBusy() {
	}
	delayMicrosFn(200)

	lapic.SendIPI(apicID, icrSIPI|uint32(sipiVector))
	for lapic.ICRBusy() {
	}
}

// allocateStack reserves a private, page-aligned stack for one AP and
// returns the address of its top; stacks grow down from base+size.
func allocateStack() (uintptr, *kernel.Error) {
	base, err := pmm.AllocatePages(config.CoreStackSizePages)
	if err != nil {
		return 0, err
	}
	return base + uintptr(config.CoreStackSizePages)*uintptr(mem.PageSize), nil
}
