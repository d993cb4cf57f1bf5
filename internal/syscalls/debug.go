// Package syscalls implements the three host system calls a decoder
// binary can invoke via ECALL (spec §4.F): debug_print, combine_images,
// and dob_ring_match. Each is a riscv.Syscall registered on a Machine
// for the duration of one decode execution; none retain state across
// executions (spec §4.F "Shared-state discipline").
package syscalls

import "github.com/sporeprotocol/dob-decoder-go/internal/riscv"

// DebugPrintSyscallNumber is the A7 dispatch value for debug_print.
const DebugPrintSyscallNumber = 2177

// CombineImagesSyscallNumber is the A7 dispatch value shared by
// combine_images (DOB/1) and dob_ring_match (the ring variant) — the two
// are mutually exclusive per host construction, matching spec §4.F.2/4.F.3.
const CombineImagesSyscallNumber = 2077

// Debug collects NUL-terminated strings the guest writes via A0 into the
// Machine's own output-lines vector (spec §4.F.1).
type Debug struct{}

func (Debug) Number() int64 { return DebugPrintSyscallNumber }

func (Debug) Handle(m *riscv.Machine) (bool, error) {
	addr := m.Reg(riscv.RegA0)
	line, err := m.Memory().LoadCString(addr)
	if err != nil {
		return false, err
	}
	m.PushOutput(line)
	return true, nil
}
