package irq

import (
	"github.com/calint/uefi-os/apic"
	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/cpu"
)

// PIT channel 0 runs at this fixed input frequency.
const pitFrequency = 1193182

// pitCalibrationCount is chosen so channel 0's terminal count fires after
// roughly 10ms (0xFFFF / 1193182 Hz ≈ 55ms is the max; this kernel instead
// loads a count sized for ~10ms and repeats the elapsed-ticks math below
// with that shorter, more APIC-resolution-friendly window).
const pitCalibrationCount = 11932 // ~10ms at 1.193182 MHz

const (
	pitCmdChannel0Mode0LoHi = 0x30
	pitReadBackStatusCh0    = 0xE2
	pitStatusOutputBit      = 1 << 7
)

// timerDivideBy16 programs the LAPIC timer's divide-configuration
// register for a divide-by-16 count, giving calibration enough headroom
// that the initial count fits comfortably in 32 bits.
const timerDivideBy16 = 0x3

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
	rdtscFn         = cpu.RDTSC
	pauseFn         = cpu.Pause
)

// calibratedAPICTicksPerSecond and calibratedTSCTicksPerSecond are filled
// in by Calibrate and consulted by DelayMicros.
var (
	calibratedAPICTicksPerSecond uint64
	calibratedTSCTicksPerSecond  uint64
)

// Calibrate measures the LAPIC timer's and the time-stamp counter's tick
// rates against the legacy PIT's known frequency, then arms the LAPIC
// timer in periodic mode at config.TimerHz using the measured rate. The
// timer's vector stays masked until the measurement completes so no
// stray tick fires mid-calibration.
func Calibrate(lapic *apic.LocalAPIC) {
	lapic.SetTimerDivide(timerDivideBy16)
	lapic.SetTimerVector(config.VectorTimer, false, true)
	lapic.SetInitialCount(0xFFFFFFFF)

	portWriteByteFn(config.PITCommand, pitCmdChannel0Mode0LoHi)
	portWriteByteFn(config.PITChannel0Data, byte(pitCalibrationCount&0xFF))
	portWriteByteFn(config.PITChannel0Data, byte(pitCalibrationCount>>8))

	startTSC := rdtscFn()
	for !pitTerminalCountReached() {
		pauseFn()
	}
	elapsedTSC := rdtscFn() - startTSC

	remaining := lapic.CurrentCount()
	elapsedAPICTicks := uint64(0xFFFFFFFF) - uint64(remaining)

	// pitCalibrationCount ticks of the PIT's 1.193182MHz clock span
	// almost exactly 10ms, so scaling the measured ticks by 100 gives a
	// full second's worth.
	const pitCyclesPerSecond = 100
	calibratedAPICTicksPerSecond = elapsedAPICTicks * pitCyclesPerSecond
	calibratedTSCTicksPerSecond = elapsedTSC * pitCyclesPerSecond

	periodicCount := uint32(calibratedAPICTicksPerSecond / config.TimerHz)
	lapic.SetInitialCount(periodicCount)
	lapic.SetTimerVector(config.VectorTimer, true, false)
}

func pitTerminalCountReached() bool {
	portWriteByteFn(config.PITCommand, pitReadBackStatusCh0)
	status := portReadByteFn(config.PITChannel0Data)
	return status&pitStatusOutputBit != 0
}

// DelayMicros busy-waits for approximately us microseconds using the
// time-stamp-counter rate Calibrate measured. It is a no-op until
// Calibrate has run at least once.
func DelayMicros(us uint64) {
	if calibratedTSCTicksPerSecond == 0 {
		return
	}
	ticksPerMicro := calibratedTSCTicksPerSecond / 1_000_000
	target := rdtscFn() + ticksPerMicro*us
	for rdtscFn() < target {
		pauseFn()
	}
}

// MaskLegacyPIC writes the all-ones mask to both legacy 8259 PICs so they
// never raise an interrupt line now that the I/O APIC owns routing.
func MaskLegacyPIC() {
	portWriteByteFn(config.PICMasterData, 0xFF)
	portWriteByteFn(config.PICSlaveData, 0xFF)
}
