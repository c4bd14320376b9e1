package vmm

import "github.com/calint/uefi-os/cpu"

// patMSR is the IA32_PAT model-specific register.
const patMSR = 0x277

// writeMSRFn is swapped out in tests.
var writeMSRFn = cpu.WriteMSR

// ConfigurePAT programs PAT entry 4 as write-combining (memory type 0x01);
// entries 0-3 keep the standard WB/WT/UC-/UC assignment MapRange's other
// flag bits assume, and 5-7 (unused by any FlagXxx constant here) are
// filled with UC-/WP/UC rather than left at whatever the entry happened
// to reset to. This must run before CR3 is loaded with the tables
// MapRange builds, since FlagWriteCombining assumes PAT index 4 means
// write-combining.
func ConfigurePAT() {
	const (
		wb  = 0x06
		wt  = 0x04
		ucMinus = 0x07
		uc  = 0x00
		wc  = 0x01
		wp  = 0x05
	)

	val := uint64(wb) |
		uint64(wt)<<8 |
		uint64(ucMinus)<<16 |
		uint64(uc)<<24 |
		uint64(wc)<<32 |
		uint64(ucMinus)<<40 |
		uint64(wp)<<48 |
		uint64(uc)<<56

	writeMSRFn(patMSR, val)
}
