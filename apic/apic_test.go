package apic

import (
	"testing"
	"unsafe"
)

// lapicFixture allocates a real Go-owned buffer big enough to cover every
// LAPIC register this package touches, so LocalAPIC's unsafe reads and
// writes land on real memory instead of firmware MMIO.
func lapicFixture(t *testing.T) *LocalAPIC {
	buf := make([]byte, 0x400)
	t.Cleanup(func() { _ = buf })
	return NewLocalAPIC(uintptr(unsafe.Pointer(&buf[0])))
}

func ioapicFixture(t *testing.T) *IOAPIC {
	buf := make([]byte, 0x20)
	t.Cleanup(func() { _ = buf })
	return NewIOAPIC(uintptr(unsafe.Pointer(&buf[0])))
}

func TestLocalAPICIDReadsTopByte(t *testing.T) {
	l := lapicFixture(t)
	l.write(RegID, 0x03000000)
	if got := l.ID(); got != 3 {
		t.Fatalf("expected APIC ID 3; got %d", got)
	}
}

func TestLocalAPICEnableSetsSoftwareEnableBit(t *testing.T) {
	l := lapicFixture(t)
	l.Enable(0xFF)
	got := l.read(RegSVR)
	if got&svrAPICEnable == 0 {
		t.Fatal("expected software-enable bit set")
	}
	if got&0xFF != 0xFF {
		t.Fatalf("expected spurious vector 0xFF; got 0x%x", got&0xFF)
	}
}

func TestLocalAPICSendIPIWritesHighBeforeLow(t *testing.T) {
	l := lapicFixture(t)
	l.SendIPI(7, 0x000C4500)
	if got := l.read(RegICRHigh); got != 7<<24 {
		t.Fatalf("expected destination APIC ID 7 in ICR high; got 0x%x", got)
	}
	if got := l.read(RegICRLow); got != 0x000C4500 {
		t.Fatalf("expected command 0x000C4500 in ICR low; got 0x%x", got)
	}
}

func TestLocalAPICICRBusyReflectsDeliveryStatusBit(t *testing.T) {
	l := lapicFixture(t)
	if l.ICRBusy() {
		t.Fatal("expected idle ICR to report not busy")
	}
	l.write(RegICRLow, 1<<12)
	if !l.ICRBusy() {
		t.Fatal("expected delivery-status bit set to report busy")
	}
}

func TestLocalAPICSetTimerVectorEncodesModeAndMask(t *testing.T) {
	l := lapicFixture(t)

	l.SetTimerVector(32, false, false)
	if got := l.read(RegLVTTimer); got != 32 {
		t.Fatalf("expected one-shot unmasked vector 32; got 0x%x", got)
	}

	l.SetTimerVector(32, true, false)
	if got := l.read(RegLVTTimer); got != 32|lvtPeriodic {
		t.Fatalf("expected periodic bit set; got 0x%x", got)
	}

	l.SetTimerVector(32, true, true)
	if got := l.read(RegLVTTimer); got != 32|lvtPeriodic|lvtMasked {
		t.Fatalf("expected masked+periodic bits set; got 0x%x", got)
	}
}

func TestLocalAPICInitialAndCurrentCount(t *testing.T) {
	l := lapicFixture(t)
	l.SetInitialCount(0x1234)
	if got := l.read(RegInitCount); got != 0x1234 {
		t.Fatalf("expected initial count 0x1234; got 0x%x", got)
	}
	l.write(RegCurCount, 0x10)
	if got := l.CurrentCount(); got != 0x10 {
		t.Fatalf("expected current count 0x10; got 0x%x", got)
	}
}

func TestIOAPICSetRedirectionPacksVectorFlagsAndDestination(t *testing.T) {
	io := ioapicFixture(t)
	io.SetRedirection(0, 33, 1<<13|1<<15, 9)

	low := io.readReg(ioRedirTableBase)
	high := io.readReg(ioRedirTableBase + 1)

	if low != uint32(33|1<<13|1<<15) {
		t.Fatalf("expected low dword to pack vector+flags; got 0x%x", low)
	}
	if high != 9<<24 {
		t.Fatalf("expected high dword to carry destination APIC ID 9; got 0x%x", high)
	}
}

func TestIOAPICSetRedirectionAddressesEntryByGSI(t *testing.T) {
	io := ioapicFixture(t)
	io.SetRedirection(2, 40, 0, 0)

	low := io.readReg(ioRedirTableBase + 4)
	if low != 40 {
		t.Fatalf("expected GSI 2's entry at index %d; got low dword 0x%x", ioRedirTableBase+4, low)
	}
}
