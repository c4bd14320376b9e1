package smp

import "encoding/binary"

// The trampoline's three stages are hand-assembled rather than emitted by
// a real assembler, since the blob is data this kernel copies into low
// memory rather than code the Go toolchain ever touches. Each helper
// below names the instruction it encodes so the stage builders that
// follow read like assembly with the opcodes spelled out.

// ModRM register-field encodings for the eight non-extended 64-bit
// registers, named for readability at call sites below.
const (
	regRAX = 0
	regRSP = 4
	regRBP = 5
	regRDI = 7
)

func cli() []byte { return []byte{0xFA} }

func xorAXAX() []byte { return []byte{0x31, 0xC0} }

func movDSFromAX() []byte { return []byte{0x8E, 0xD8} }
func movESFromAX() []byte { return []byte{0x8E, 0xC0} }
func movSSFromAX() []byte { return []byte{0x8E, 0xD0} }

// movAXImm16 encodes MOV AX, imm16 for the 32- and 64-bit stages, where
// the 0x66 operand-size prefix selects the 16-bit form of B8.
func movAXImm16(v uint16) []byte {
	b := make([]byte, 4)
	b[0], b[1] = 0x66, 0xB8
	binary.LittleEndian.PutUint16(b[2:], v)
	return b
}

// lgdt16 encodes LGDT with a 16-bit direct displacement, valid since
// every address the trampoline's GDT pointer lives at fits in 16 bits.
func lgdt16(addr uint16) []byte {
	b := make([]byte, 5)
	b[0], b[1], b[2] = 0x0F, 0x01, 0x16
	binary.LittleEndian.PutUint16(b[3:], addr)
	return b
}

func movEAXFromCR0() []byte { return []byte{0x0F, 0x20, 0xC0} }
func movCR0FromEAX() []byte { return []byte{0x0F, 0x22, 0xC0} }
func movEAXFromCR4() []byte { return []byte{0x0F, 0x20, 0xE0} }
func movCR4FromEAX() []byte { return []byte{0x0F, 0x22, 0xE0} }
func movEAXFromCR3() []byte { return []byte{0x0F, 0x20, 0xD8} }
func movCR3FromEAX() []byte { return []byte{0x0F, 0x22, 0xD8} }

// movCR3FromReg encodes MOV CR3, r64/r32 for any of the eight
// non-extended general registers. CR-register moves always operate on
// the full register width the current mode implies (64 bits in long
// mode), so this same encoding backs both the protected-mode
// movCR3FromEAX call site above and the long-mode reload in stage 3.
func movCR3FromReg(reg uint8) []byte { return []byte{0x0F, 0x22, 0xD8 | reg} }

// movReg64FromReg64 encodes MOV dst, src between two 64-bit registers,
// both drawn from the non-extended set (RAX..RDI, encodings 0-7).
func movReg64FromReg64(dst, src uint8) []byte {
	return []byte{rexW, 0x8B, 0xC0 | (dst << 3) | src}
}

func orALImm8(v uint8) []byte { return []byte{0x0C, v} }

func orEAXImm32(v uint32) []byte {
	b := make([]byte, 5)
	b[0] = 0x0D
	binary.LittleEndian.PutUint32(b[1:], v)
	return b
}

func movEAXImm32(v uint32) []byte {
	b := make([]byte, 5)
	b[0] = 0xB8
	binary.LittleEndian.PutUint32(b[1:], v)
	return b
}

func movECXImm32(v uint32) []byte {
	b := make([]byte, 5)
	b[0] = 0xB9
	binary.LittleEndian.PutUint32(b[1:], v)
	return b
}

func rdmsr() []byte { return []byte{0x0F, 0x32} }
func wrmsr() []byte { return []byte{0x0F, 0x30} }

// farJmp16To32 is JMP FAR with a 32-bit operand-size override (0x66),
// executed from 16-bit code to reach a 32-bit code segment.
func farJmp16To32(offset uint32, selector uint16) []byte {
	b := make([]byte, 7)
	b[0], b[1] = 0x66, 0xEA
	binary.LittleEndian.PutUint32(b[2:], offset)
	binary.LittleEndian.PutUint16(b[6:], selector)
	return b
}

// farJmp32To64 is JMP FAR executed from already-32-bit code.
func farJmp32To64(offset uint32, selector uint16) []byte {
	b := make([]byte, 7)
	b[0] = 0xEA
	binary.LittleEndian.PutUint32(b[1:], offset)
	binary.LittleEndian.PutUint16(b[5:], selector)
	return b
}

// REX.W prefix, used on every 64-bit-operand instruction below.
const rexW = 0x48

func movRAXImm64(v uint64) []byte {
	b := make([]byte, 10)
	b[0], b[1] = rexW, 0xB8
	binary.LittleEndian.PutUint64(b[2:], v)
	return b
}

// movRegFromRAXPlusDisp8 loads a 64-bit register from [rax+disp8]. reg
// follows the ModRM reg-field encoding: RSP=4, RDI=7.
func movRegFromRAXPlusDisp8(reg uint8, disp int8) []byte {
	modrm := 0x40 | (reg << 3) | 0x00 // mod=01 (disp8), rm=000 (RAX)
	return []byte{rexW, 0x8B, modrm, byte(disp)}
}

func movRAXPtr() []byte { return []byte{rexW, 0x8B, 0x00} } // mov rax, [rax]

func callRAX() []byte { return []byte{0xFF, 0xD0} }

func hlt() []byte { return []byte{0xF4} }
func jmpSelf() []byte { return []byte{0xEB, 0xFE} } // short jump to itself
