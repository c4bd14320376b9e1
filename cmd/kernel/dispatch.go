package main

import (
	"sync/atomic"

	"github.com/calint/uefi-os/apic"
	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/cpu"
	"github.com/calint/uefi-os/irq"
	"github.com/calint/uefi-os/job"
	"github.com/calint/uefi-os/kernel/kfmt"
)

// jobQueue is the single SPMC ring the bootstrap core produces into and
// every core, itself included once bring-up finishes, consumes from.
var jobQueue job.Queue

// coreTable holds every usable core's APIC ID in the order ACPI reported
// them; a core's own index into this slice is its "identity" for the rest
// of the program's lifetime.
var coreTable []uint8

// bootstrapLAPIC is the local APIC accessor the bootstrap's interrupt
// handlers send end-of-interrupt through. Each AP never touches it: an
// AP's IDT is empty, so it never receives an interrupt to acknowledge.
var bootstrapLAPIC *apic.LocalAPIC

// CoreIdentity is invoked once by every core, bootstrap and AP alike, as
// soon as it has found its own slot in coreTable. It is the boot
// banner/core-join log SPEC_FULL.md's §1.3 restores from the original
// implementation.
var CoreIdentity = func(index int, apicID uint8) {
	kfmt.Printf("[core %d] joined, APIC ID %d\n", index, apicID)
}

// findCoreIndex linearly scans coreTable for apicID, matching C7's
// "locate own slot in CoreTable by linear scan" contract; coreTable is
// small enough (MaxCores) that a linear scan needs no index structure.
func findCoreIndex(apicID uint8) int {
	for i, id := range coreTable {
		if id == apicID {
			return i
		}
	}
	return -1
}

// tickCount is incremented once per timer job actually executed, by
// whichever core's dispatchLoop happens to claim it; a diagnostic only.
var tickCount atomic.Uint64

// tickJob is submitted by the timer ISR. It carries no payload of its own
// beyond satisfying job.Runnable.
type tickJob struct{}

func (tickJob) Run() { tickCount.Add(1) }

// keyPressJob carries the scancode the keyboard ISR already read off the
// PS/2 data port; decoding scancodes into characters is an out-of-scope
// external collaborator (SPEC_FULL.md §1), so Run only logs the raw byte.
type keyPressJob struct {
	scancode byte
}

func (j keyPressJob) Run() {
	kfmt.Taggedf("[kbd] ", "scancode %x\n", j.scancode)
}

// onTimerInterrupt is installed as the bootstrap's timer handler. It
// acknowledges the interrupt before enqueueing, since EOI must happen on
// the interrupted core itself, while the job it submits may run on any
// core.
func onTimerInterrupt(_ *irq.Frame, _ *irq.Regs) {
	bootstrapLAPIC.SendEOI()
	job.Add(&jobQueue, tickJob{})
}

// onKeyboardInterrupt reads the scancode directly (the PS/2 controller
// only holds one byte at a time; a job dispatched to another core could
// not read it after the fact) then enqueues the decode/log work.
func onKeyboardInterrupt(_ *irq.Frame, _ *irq.Regs) {
	scancode := cpu.PortReadByte(config.PS2DataPort)
	bootstrapLAPIC.SendEOI()
	job.Add(&jobQueue, keyPressJob{scancode: scancode})
}

// dispatchLoop is C7's steady-state: run one ready job if there is one,
// otherwise PAUSE. It never returns; every core, including the bootstrap
// once it finishes bring-up, ends up here.
func dispatchLoop() {
	for {
		if !jobQueue.RunNext() {
			cpu.Pause()
		}
	}
}

// runAPMain is installed as smp.APMain. It runs on a virgin AP that has
// just executed the trampoline's long-mode stage and called into Go for
// the first time: reinstall the GDT (already loaded by the trampoline,
// but InstallGDT also reloads the data segment registers this core has
// never set), load an empty IDT, find this core's identity, log it, and
// enter the consumer loop.
func runAPMain() {
	irq.InstallAP()

	apicID := cpu.LocalAPICID()
	index := findCoreIndex(apicID)
	CoreIdentity(index, apicID)

	dispatchLoop()
}
