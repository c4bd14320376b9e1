// Package diag wires the out-of-band diagnostics collaborators named in
// SPEC_FULL.md §6 but not otherwise part of the core bring-up sequence: a
// COM1 serial sink for kfmt.Printf output, a boot-time RTC timestamp, and
// a boot-parameter tokenizer. None of these gate C1-C7; a failure here is
// logged, never fatal.
package diag

import (
	"github.com/usbarmory/tamago/soc/intel/rtc"
	"github.com/usbarmory/tamago/soc/intel/uart"

	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/kernel/kfmt"
)

// SerialSink adapts tamago's COM1 UART driver to io.Writer so it can be
// handed to kfmt.SetOutputSink directly.
type SerialSink struct {
	port *uart.UART
}

// NewSerialSink initializes the COM1 UART at config.SerialPort and returns
// a writer over it. The line rate is the driver's own default;
// config.SerialBaud is not passed to it.
func NewSerialSink() *SerialSink {
	port := &uart.UART{Index: 1, Base: uint32(config.SerialPort)}
	port.Init()
	return &SerialSink{port: port}
}

// Write transmits p one byte at a time, tamago's UART having no
// buffered-write API.
func (s *SerialSink) Write(p []byte) (int, error) {
	for _, b := range p {
		s.port.Tx(b)
	}
	return len(p), nil
}

// LogBootTimestamp reads the CMOS real-time clock and prints it, the same
// diagnostic nicety original_source/src/kernel.cpp prints before entering
// the idle loop. RTC absence is logged, not fatal: the timestamp is a
// diagnostic only, never consulted by any core-dispatch decision.
func LogBootTimestamp() {
	clock := &rtc.RTC{}
	t, err := clock.Now()
	if err != nil {
		kfmt.Taggedf("[diag] ", "RTC unavailable: %s\n", err.Error())
		return
	}
	kfmt.Taggedf("[diag] ", "boot RTC time: %d-%02d-%02d %02d:%02d:%02d UTC\n",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}
