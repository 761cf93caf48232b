package machines

import (
	"fmt"
	"slices"
)

// Flags is the condition record. Only instructions that carry trail records
// write it, so self-inverse and algebraic instructions never disturb it.
type Flags struct {
	Zero     bool
	Negative bool
	Carry    bool
	Overflow bool
}

func (f Flags) Bits() uint8 {
	var b uint8
	if f.Zero {
		b |= 1
	}
	if f.Carry {
		b |= 2
	}
	if f.Overflow {
		b |= 4
	}
	if f.Negative {
		b |= 8
	}
	return b
}

func FlagsFromBits(b uint8) Flags {
	return Flags{
		Zero:     b&1 != 0,
		Carry:    b&2 != 0,
		Overflow: b&4 != 0,
		Negative: b&8 != 0,
	}
}

func resultFlags(v int64) Flags {
	return Flags{
		Zero:     v == 0,
		Negative: v < 0,
	}
}

// Reg indexes the general purpose register bank.
type Reg uint8

func (r Reg) String() string {
	return fmt.Sprintf("r%d", uint8(r))
}

// State is a read-only copy of the register file and control registers.
type State struct {
	Registers []int64
	Flags     Flags
	IP        int64
	SP        int64
	FP        int64
	Halted    bool
}

func (s State) Clone() State {
	s.Registers = slices.Clone(s.Registers)
	return s
}

func (s State) Equal(other State) bool {
	return slices.Equal(s.Registers, other.Registers) &&
		s.Flags == other.Flags &&
		s.IP == other.IP &&
		s.SP == other.SP &&
		s.FP == other.FP &&
		s.Halted == other.Halted
}

func (s State) String() string {
	return fmt.Sprintf("ip=%d sp=%d fp=%d flags=%04b halted=%v regs=%v",
		s.IP, s.SP, s.FP, s.Flags.Bits(), s.Halted, s.Registers)
}
