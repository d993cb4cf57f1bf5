package riscv

import (
	"encoding/binary"
	"fmt"
)

const elfMagic = "\x7fELF"

// loadELF parses a minimal subset of a 64-bit ELF executable (just enough
// to place PT_LOAD segments into guest memory and find the entry point)
// and copies its segments into mem. Decoder binaries are plain statically
// linked RV64 executables with no dynamic linking, so program headers are
// all this loader needs.
func loadELF(mem *Memory, code []byte) (entry uint64, err error) {
	if len(code) < 64 || string(code[:4]) != elfMagic {
		return 0, fmt.Errorf("riscv: not an ELF64 binary")
	}
	if code[4] != 2 {
		return 0, fmt.Errorf("riscv: not a 64-bit ELF binary")
	}
	little := code[5] == 1

	order := binary.ByteOrder(binary.LittleEndian)
	if !little {
		order = binary.BigEndian
	}

	entry = order.Uint64(code[24:32])
	phoff := order.Uint64(code[32:40])
	phentsize := order.Uint16(code[54:56])
	phnum := order.Uint16(code[56:58])

	const ptLoad = 1
	for i := uint16(0); i < phnum; i++ {
		base := phoff + uint64(i)*uint64(phentsize)
		if base+56 > uint64(len(code)) {
			return 0, fmt.Errorf("riscv: program header %d out of range", i)
		}
		ph := code[base : base+56]
		pType := order.Uint32(ph[0:4])
		if pType != ptLoad {
			continue
		}
		pOffset := order.Uint64(ph[8:16])
		pVaddr := order.Uint64(ph[16:24])
		pFilesz := order.Uint64(ph[32:40])
		pMemsz := order.Uint64(ph[40:48])

		if pOffset+pFilesz > uint64(len(code)) {
			return 0, fmt.Errorf("riscv: PT_LOAD segment %d exceeds file size", i)
		}
		segment := code[pOffset : pOffset+pFilesz]
		if err := mem.StoreBytes(pVaddr, segment); err != nil {
			return 0, fmt.Errorf("riscv: load segment %d at 0x%x: %w", i, pVaddr, err)
		}
		// BSS-style tail (memsz > filesz) is already zero in a fresh Memory.
		_ = pMemsz
	}
	return entry, nil
}
