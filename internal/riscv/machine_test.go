package riscv

import (
	"encoding/binary"
	"testing"
)

// buildELF assembles a minimal 64-bit little-endian ELF executable with a
// single PT_LOAD segment holding code, loaded at vaddr and entered there.
func buildELF(code []byte, vaddr uint64) []byte {
	const ehSize = 64
	const phSize = 56
	phoff := uint64(ehSize)
	fileSize := ehSize + phSize + len(code)
	codeOffset := uint64(ehSize + phSize)

	buf := make([]byte, fileSize)
	copy(buf[0:4], elfMagic)
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // little-endian

	binary.LittleEndian.PutUint64(buf[24:32], vaddr) // e_entry
	binary.LittleEndian.PutUint64(buf[32:40], phoff) // e_phoff
	binary.LittleEndian.PutUint16(buf[54:56], phSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1) // e_phnum

	ph := buf[ehSize : ehSize+phSize]
	binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
	binary.LittleEndian.PutUint64(ph[8:16], codeOffset)
	binary.LittleEndian.PutUint64(ph[16:24], vaddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(code)))
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(code)))

	copy(buf[codeOffset:], code)
	return buf
}

func encodeI(opcode uint32, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)<<20 & 0xfff00000) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func TestMachineExitWithRegisterValue(t *testing.T) {
	const vaddr = 0x1000
	code := []byte{}
	put := func(w uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		code = append(code, b[:]...)
	}
	put(encodeI(0x13, RegA0, 0, RegZero, 42)) // addi a0, zero, 42
	put(encodeI(0x13, RegA7, 0, RegZero, 93)) // addi a7, zero, 93 (exit)
	put(0x73)                                 // ecall

	elf := buildELF(code, vaddr)

	m := New()
	if err := m.LoadProgram(elf, nil); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	exitCode, lines, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exitCode != 42 {
		t.Errorf("exitCode = %d, want 42", exitCode)
	}
	if len(lines) != 0 {
		t.Errorf("expected no output lines, got %v", lines)
	}
}

func TestMachineDebugSyscall(t *testing.T) {
	const vaddr = 0x1000
	const strAddr = 0x2000
	code := []byte{}
	put := func(w uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		code = append(code, b[:]...)
	}
	put(0x2<<12 | RegA0<<7 | 0x37)                 // lui a0, 0x2 (a0 = strAddr)
	put(0x1<<12 | RegA7<<7 | 0x37)                 // lui a7, 0x1
	put(encodeI(0x13, RegA7, 0, RegA7, -1919))     // addi a7, a7, -1919 (a7 = 2177, debug_print)
	put(0x73)                                      // ecall
	put(encodeI(0x13, RegA7, 0, RegZero, 93))      // addi a7, zero, 93 (exit)
	put(0x73)                                      // ecall

	elf := buildELF(code, vaddr)

	m := New(debugSyscall{})
	if err := m.LoadProgram(elf, nil); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	if err := m.Memory().StoreBytes(strAddr, append([]byte("hello from guest"), 0)); err != nil {
		t.Fatalf("StoreBytes: %v", err)
	}

	exitCode, lines, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exitCode = %d, want 0", exitCode)
	}
	if len(lines) != 1 || lines[0] != "hello from guest" {
		t.Errorf("got lines %v, want [\"hello from guest\"]", lines)
	}
}

// debugSyscall is a minimal local stand-in for syscalls.Debug, kept here
// to avoid an import cycle between internal/riscv and internal/syscalls.
type debugSyscall struct{}

func (debugSyscall) Number() int64 { return 2177 }

func (debugSyscall) Handle(m *Machine) (bool, error) {
	s, err := m.Memory().LoadCString(m.Reg(RegA0))
	if err != nil {
		return false, err
	}
	m.PushOutput(s)
	return true, nil
}
