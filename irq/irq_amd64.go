package irq

import (
	"github.com/calint/uefi-os/apic"
	"github.com/calint/uefi-os/config"
)

// RouteKeyboard programs ioapic's redirection entry for the keyboard's
// GSI (relative to that I/O APIC's own gsi_base) to fire
// config.VectorKeyboard on destAPICID, carrying the polarity/trigger
// flags ACPI reported for the keyboard's Interrupt Source Override.
func RouteKeyboard(ioapic *apic.IOAPIC, gsiRelative uint32, flags uint16, destAPICID uint8) {
	ioapic.SetRedirection(gsiRelative, config.VectorKeyboard, flags, destAPICID)
}

// InstallBootstrap brings up the full interrupt plane on the core that
// runs firmware handoff: GDT, a populated IDT, the legacy PIC masked out,
// and the LAPIC timer calibrated and armed. It returns the LocalAPIC
// accessor so the caller can route the keyboard and send EOIs.
func InstallBootstrap(localAPICAddr uintptr) *apic.LocalAPIC {
	InstallGDT()
	InstallIDT(true)
	MaskLegacyPIC()

	lapic := apic.NewLocalAPIC(localAPICAddr)
	lapic.Enable(config.VectorSpurious)
	Calibrate(lapic)
	InitPS2()

	return lapic
}

// InstallAP brings up the interrupt plane on an application processor:
// GDT and an intentionally empty IDT. An AP never calibrates or arms its
// own timer; the bootstrap core's periodic tick is the only clock this
// kernel needs.
func InstallAP() {
	InstallGDT()
	InstallIDT(false)
}
