package main

import (
	"golang.org/x/sys/unix"

	"github.com/calint/uefi-os/kernel"
	"github.com/calint/uefi-os/kernel/kfmt"
)

// efiStatus is the UEFI EFI_STATUS this program's entry point returns to
// firmware: 0 on success, or the platform error code with the
// high-order bit set. unix.Errno already has exactly this shape (a small
// integer, Stringer-formatted for diagnostics) for POSIX errno values, so
// it is reused here rather than defining a parallel integer-with-a-String-
// method type solely for this one return value.
type efiStatus = unix.Errno

const (
	efiSuccess efiStatus = 0
	efiAborted efiStatus = 1<<63 | 21
)

// firmwareFailure logs err and returns efiAborted rather than halting.
// It is the return path for the "firmware failure" error class (absent
// GOP, absent ACPI 2.0+ pointer, ExitBootServices exhausted): firmware
// remains in control on these paths and can fall back to another boot
// option, unlike an invariant violation discovered during bring-up
// itself, which has nowhere left to hand control back to and so panics
// instead.
func firmwareFailure(err *kernel.Error) efiStatus {
	kfmt.Taggedf("[boot] ", "fatal: [%s] %s\n", err.Module, err.Message)
	return efiAborted
}
