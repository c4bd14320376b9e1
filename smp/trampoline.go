package smp

import (
	"encoding/binary"

	"github.com/calint/uefi-os/config"
)

// Fixed byte offsets inside the trampoline blob. The three code stages are
// each given generous, non-overlapping windows since the exact instruction
// count of hand-encoded stages is easy to get wrong by a few bytes across
// edits; the GDT table, its descriptor pointer and the embedded
// TrampolineConfig sit past all three, at offsets small enough to be
// addressed as 16-bit displacements from the real-mode stage.
const (
	offsetCode16     = 0x0000
	offsetCode32     = 0x0100
	offsetCode64     = 0x0200
	offsetGDTTable   = 0x0300
	offsetGDTPointer = 0x0340
	offsetConfig     = 0x0360
)

// configSize matches TrampolineConfig's four 64-bit fields (§3, 32 bytes).
const configSize = 32

// TrampolineConfig is the fixed-layout record C5 writes into the blob at
// offsetConfig and the 64-bit stage reads back via base+displacement
// loads once it has a pointer to this structure in a register.
type TrampolineConfig struct {
	ProtectedModePDPT uint64
	StackTop          uint64
	TaskEntry         uint64
	LongModePML4      uint64
}

// Field byte offsets within TrampolineConfig, matching §6's wire layout.
const (
	configOffPDPT      = 0
	configOffStackTop  = 8
	configOffTaskEntry = 16
	configOffPML4      = 24
)

// Build assembles the trampoline blob and returns it along with the
// physical address of the embedded TrampolineConfig, so the launcher can
// rewrite it in place between APs without rebuilding the whole blob.
func Build() (blob []byte, configAddr uintptr) {
	blob = make([]byte, config.TrampolineMaxSize)

	copyAt(blob, offsetCode16, buildStage16())
	copyAt(blob, offsetCode32, buildStage32())
	copyAt(blob, offsetCode64, buildStage64())
	copyAt(blob, offsetGDTTable, encodeGDTTable())
	copyAt(blob, offsetGDTPointer, encodeGDTPointer())

	return blob, config.TrampolineAddr + offsetConfig
}

// WriteConfig serializes cfg into blob at offsetConfig, little-endian, per
// §6. Called once per AP: the same trampoline instance is reused
// sequentially, with only this record rewritten between launches.
func WriteConfig(blob []byte, cfg TrampolineConfig) {
	b := blob[offsetConfig : offsetConfig+configSize]
	binary.LittleEndian.PutUint64(b[configOffPDPT:], cfg.ProtectedModePDPT)
	binary.LittleEndian.PutUint64(b[configOffStackTop:], cfg.StackTop)
	binary.LittleEndian.PutUint64(b[configOffTaskEntry:], cfg.TaskEntry)
	binary.LittleEndian.PutUint64(b[configOffPML4:], cfg.LongModePML4)
}

func copyAt(dst []byte, offset int, src []byte) {
	copy(dst[offset:], src)
}

// buildStage16 encodes the real-mode leg: disable interrupts, load the
// trampoline's own local GDT, enter protected mode, far-jump to the
// 32-bit code segment.
func buildStage16() []byte {
	var code []byte
	emit := func(b []byte) { code = append(code, b...) }

	emit(cli())
	emit(xorAXAX())
	emit(movDSFromAX())

	emit(lgdt16(uint16(config.TrampolineAddr + offsetGDTPointer)))

	emit(movEAXFromCR0())
	emit(orALImm8(1)) // CR0.PE
	emit(movCR0FromEAX())

	emit(farJmp16To32(uint32(config.TrampolineAddr+offsetCode32), trampolineSelectorCode32))

	return code
}

// buildStage32 encodes the protected-mode leg: load flat data selectors,
// enable PAE, load the minimal identity-mapping PDPT, set EFER.LME, enable
// paging, far-jump to the 64-bit code segment.
func buildStage32() []byte {
	var code []byte
	emit := func(b []byte) { code = append(code, b...) }

	emit(movAXImm16(trampolineSelectorData32))
	emit(movDSFromAX())
	emit(movESFromAX())
	emit(movSSFromAX())

	emit(movEAXFromCR4())
	emit(orEAXImm32(1 << 5)) // CR4.PAE
	emit(movCR4FromEAX())

	emit(movEAXImm32(uint32(config.ProtectedModePDPTAddr)))
	emit(movCR3FromEAX())

	const msrEFER = 0xC0000080
	const efELME = 1 << 8
	emit(movECXImm32(msrEFER))
	emit(rdmsr())
	emit(orEAXImm32(efELME))
	emit(wrmsr())

	emit(movEAXFromCR0())
	emit(orEAXImm32(1 << 31)) // CR0.PG
	emit(movCR0FromEAX())

	emit(farJmp32To64(uint32(config.TrampolineAddr+offsetCode64), trampolineSelectorCode64))

	return code
}

// buildStage64 encodes the long-mode leg: load the real long-mode PML4,
// reload data segments, load this AP's private stack, and call into the
// task entry point. RAX holds the TrampolineConfig's address and every
// field is read straight off it via disp8 loads; the data-segment reload
// goes through AX, so the address is loaded into RAX again right after
// it. From there RAX is not overwritten until the final load of the task
// entry, by which point nothing else is needed from it.
func buildStage64() []byte {
	var code []byte
	emit := func(b []byte) { code = append(code, b...) }

	emit(movRAXImm64(uint64(config.TrampolineAddr + offsetConfig)))

	emit(movRegFromRAXPlusDisp8(regRDI, configOffPML4))
	emit(movCR3FromReg(regRDI))

	emit(movAXImm16(trampolineSelectorData32))
	emit(movDSFromAX())
	emit(movESFromAX())
	emit(movSSFromAX())
	emit(movRAXImm64(uint64(config.TrampolineAddr + offsetConfig)))

	emit(movRegFromRAXPlusDisp8(regRSP, configOffStackTop))
	emit(movReg64FromReg64(regRBP, regRSP))

	emit(movRegFromRAXPlusDisp8(regRAX, configOffTaskEntry))
	emit(callRAX())

	// The task entry never returns; this is a safety net only.
	emit(hlt())
	emit(jmpSelf())

	return code
}

func encodeGDTTable() []byte {
	b := make([]byte, 0, 8*len(trampolineGDT))
	for _, d := range trampolineGDT {
		b = append(b, encodeDescriptor32(d)...)
	}
	return b
}

func encodeDescriptor32(d descriptor32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[0:], d.LimitLow)
	binary.LittleEndian.PutUint16(b[2:], d.BaseLow)
	b[4] = d.BaseMid
	b[5] = d.Access
	b[6] = d.LimitHigh
	b[7] = d.BaseHigh
	return b
}

// encodeGDTPointer builds the 6-byte {limit, base} record LGDT reads,
// pointing at the table written to offsetGDTTable. Real mode addresses
// are absolute physical addresses since the trampoline runs with every
// segment base at zero.
func encodeGDTPointer() []byte {
	b := make([]byte, 6)
	binary.LittleEndian.PutUint16(b[0:], uint16(len(trampolineGDT)*8-1))
	binary.LittleEndian.PutUint32(b[2:], uint32(config.TrampolineAddr+offsetGDTTable))
	return b
}
