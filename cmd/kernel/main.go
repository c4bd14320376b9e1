// Command kernel is a UEFI application: firmware calls efi_main directly
// as its entry point. It runs the bootstrap core through platform bring-up
// (C1-C4), launches every other reported core (C5), then drops into the
// same steady-state job-consumer loop (C7) every core ends up in.
package main

import (
	"github.com/calint/uefi-os/apic"
	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/cpu"
	"github.com/calint/uefi-os/diag"
	"github.com/calint/uefi-os/firmware"
	"github.com/calint/uefi-os/firmware/acpi"
	"github.com/calint/uefi-os/irq"
	"github.com/calint/uefi-os/kernel/kfmt"
	"github.com/calint/uefi-os/kernel/mem"
	"github.com/calint/uefi-os/kernel/mem/pmm"
	"github.com/calint/uefi-os/kernel/mem/vmm"
	"github.com/calint/uefi-os/smp"
)

// efi_main is the UEFI subsystem entry point (§6: EFI application,
// x86_64 Windows ABI, entry point efi_main(image_handle, system_table) →
// status). Go export naming can't spell the underscore-cased symbol name
// directly at the call boundary, so the loader stub that hands control
// here (outside this package's scope, per SPEC_FULL.md's boot-executable
// note) resolves the symbol by its linker name; this function is the body
// firmware ultimately runs.
func efi_main(imageHandle, systemTable uint64) efiStatus {
	kfmt.SetOutputSink(diag.NewSerialSink())

	if err := firmware.Init(imageHandle, systemTable); err != nil {
		return firmwareFailure(err)
	}

	fb, err := firmware.LocateFrameBuffer()
	if err != nil {
		return firmwareFailure(err)
	}
	kfmt.Taggedf("[boot] ", "framebuffer %dx%d stride %d @ %x\n", fb.Width, fb.Height, fb.Stride, fb.Pixels)

	configTable, err := firmware.ConfigurationTable()
	if err != nil {
		return firmwareFailure(err)
	}
	acpiResult, err := acpi.Parse(configTable)
	if err != nil {
		return firmwareFailure(err)
	}
	coreTable = acpiResult.CoreAPICIDs
	kfmt.Taggedf("[boot] ", "%d usable core(s) reported\n", len(coreTable))

	mm, err := firmware.ExitBootServices(imageHandle)
	if err != nil {
		return firmwareFailure(err)
	}

	if pmmErr := pmm.Init(conventionalRegions(mm)); pmmErr != nil {
		kfmt.Panic(pmmErr)
	}
	for _, addr := range []uintptr{config.TrampolineAddr, config.ProtectedModePDPTAddr, config.ProtectedModePDAddr} {
		if !pmm.IsConventional(addr) {
			kfmt.PanicString("main", "trampoline destination is not conventional memory")
		}
	}

	vmm.ConfigurePAT()

	if mapErr := mapFirmwareRegions(mm); mapErr != nil {
		kfmt.Panic(mapErr)
	}
	if mapErr := vmm.MapRange(acpiResult.LocalAPICAddr, mem.PageSize, vmm.FlagsMMIO); mapErr != nil {
		kfmt.Panic(mapErr)
	}
	if mapErr := vmm.MapRange(acpiResult.IOAPICAddr, mem.PageSize, vmm.FlagsMMIO); mapErr != nil {
		kfmt.Panic(mapErr)
	}
	fbSize := mem.Size(fb.Stride) * mem.Size(fb.Height) * 4
	if mapErr := vmm.MapRange(fb.Pixels, fbSize, vmm.FlagsFramebuffer); mapErr != nil {
		kfmt.Panic(mapErr)
	}

	cpu.EnableLongModeAndPaging(vmm.PML4Addr())

	bootstrapLAPIC = irq.InstallBootstrap(acpiResult.LocalAPICAddr)

	routeKeyboardGSI(bootstrapLAPIC.ID(), acpiResult)

	irq.HandleTimer(onTimerInterrupt)
	irq.HandleKeyboard(onKeyboardInterrupt)

	diag.LogBootTimestamp()

	if args := diag.ParseBootArgs(firmware.LoadOptions()); len(args) > 0 {
		kfmt.Taggedf("[boot] ", "%d boot argument(s) parsed\n", len(args))
	}

	bootstrapAPICID := bootstrapLAPIC.ID()
	bootstrapIndex := findCoreIndex(bootstrapAPICID)
	CoreIdentity(bootstrapIndex, bootstrapAPICID)

	smp.APMain = runAPMain
	if launchErr := smp.LaunchAll(bootstrapLAPIC, coreTable, bootstrapAPICID, vmm.PML4Addr()); launchErr != nil {
		kfmt.Panic(launchErr)
	}

	cpu.EnableInterrupts()

	dispatchLoop()

	return efiSuccess
}

// routeKeyboardGSI programs the I/O APIC redirection entry the keyboard
// GSI falls under, translating the ACPI-reported global interrupt number
// into that I/O APIC's own local index (SetRedirection's gsi parameter is
// relative to its own gsi_base, not the global number).
func routeKeyboardGSI(bootstrapAPICID uint8, res acpi.Result) {
	var base uint32
	for _, io := range res.IOAPICs {
		if io.Address == res.IOAPICAddr {
			base = io.GSIBase
			break
		}
	}

	ioapic := apic.NewIOAPIC(res.IOAPICAddr)
	irq.RouteKeyboard(ioapic, res.KeyboardGSI-base, res.KeyboardFlags, bootstrapAPICID)
}
