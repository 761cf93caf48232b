package machines

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/reusee/revtape/faults"
	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/segments"
	"github.com/reusee/revtape/tapes"
	"github.com/reusee/revtape/trails"
)

var (
	ErrHalted    = errors.New("machine halted")
	ErrNoHistory = errors.New("no executed instruction to step back")
	ErrStepLimit = errors.New("step limit reached")
	ErrRunning   = errors.New("program already running")
)

// Machine is the execution core of one timeline. It owns the tape, the
// segment table laid over it, and the register file. It is not safe for
// concurrent use.
type Machine struct {
	config   Config
	logger   logs.Logger
	tape     *tapes.Tape
	segments *segments.Table
	regs     []int64
	flags    Flags
	ip       int64
	sp       int64
	fp       int64
	halted   bool
	fault    *Fault
}

func New(config Config, logger logs.Logger) (*Machine, error) {
	config = config.WithDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	tape := tapes.New(nil, nil)
	table := segments.New(tape)
	m := &Machine{
		config:   config,
		logger:   logger,
		tape:     tape,
		segments: table,
		regs:     make([]int64, config.Registers),
	}
	for _, spec := range []struct {
		name string
		size int64
		typ  segments.Type
	}{
		{SegmentCode, config.CodeSize, segments.Code},
		{SegmentStack, config.StackSize, segments.Stack},
		{SegmentHeap, config.HeapSize, segments.Heap},
	} {
		if _, err := table.Create(spec.name, spec.size, spec.typ); err != nil {
			return nil, err
		}
	}
	code, _ := table.Get(SegmentCode)
	stack, _ := table.Get(SegmentStack)
	m.ip = code.Start
	m.sp = stack.End()
	m.fp = stack.End()
	return m, nil
}

func (m *Machine) Config() Config {
	return m.config
}

func (m *Machine) Tape() *tapes.Tape {
	return m.tape
}

func (m *Machine) Trail() *trails.Trail {
	return m.tape.Trail()
}

func (m *Machine) Segments() *segments.Table {
	return m.segments
}

func (m *Machine) Halted() bool {
	return m.halted
}

// Fault returns the error that halted the machine, if any.
func (m *Machine) Fault() *Fault {
	return m.fault
}

func (m *Machine) State() State {
	return State{
		Registers: slices.Clone(m.regs),
		Flags:     m.flags,
		IP:        m.ip,
		SP:        m.sp,
		FP:        m.fp,
		Halted:    m.halted,
	}
}

// SetState overwrites the register file and control registers. The register
// count must match. It clears any fault.
func (m *Machine) SetState(state State) error {
	if len(state.Registers) != len(m.regs) {
		return fmt.Errorf("register count mismatch: %d, want %d", len(state.Registers), len(m.regs))
	}
	copy(m.regs, state.Registers)
	m.flags = state.Flags
	m.ip = state.IP
	m.sp = state.SP
	m.fp = state.FP
	m.halted = state.Halted
	m.fault = nil
	return nil
}

// Load encodes the program into the code segment and points IP at its first
// instruction. A trailing halt is appended. Labels must all resolve; nothing
// is written otherwise.
func (m *Machine) Load(program Program) error {
	for _, e := range m.Trail().Entries() {
		if e.Kind == trails.KindStep {
			return ErrRunning
		}
	}
	code, err := m.segments.Get(SegmentCode)
	if err != nil {
		return err
	}
	bs, err := program.Assemble(code.Start)
	if err != nil {
		return err
	}
	if err := m.segments.Write(SegmentCode, 0, bs); err != nil {
		return err
	}
	m.ip = code.Start
	m.halted = false
	m.fault = nil
	m.logger.Debug("program loaded",
		"instructions", len(program.Instructions),
		"bytes", len(bs),
	)
	return nil
}

// Fetch decodes the instruction at IP and returns it with its encoded size.
func (m *Machine) Fetch() (*Instruction, int64, error) {
	return m.fetchAt(m.ip)
}

func (m *Machine) fetchAt(pos int64) (*Instruction, int64, error) {
	code, err := m.segments.Get(SegmentCode)
	if err != nil {
		return nil, 0, err
	}
	if !code.Contains(pos) {
		return nil, 0, faults.Boundsf(faults.ErrOutOfBounds, "ip %d outside %v", pos, code)
	}
	header := m.tape.Read(pos, min(binary.MaxVarintLen64, int(code.End()-pos)))
	size, n := binary.Uvarint(header)
	if n <= 0 || size == 0 || size > MaxInstructionSize {
		return nil, 0, faults.Decodef(faults.ErrTruncated, "bad length prefix at %d", pos)
	}
	if pos+int64(n)+int64(size) > code.End() {
		return nil, 0, faults.Boundsf(faults.ErrOutOfBounds, "instruction at %d crosses %v", pos, code)
	}
	inst, err := Decode(m.tape.Read(pos+int64(n), int(size)))
	if err != nil {
		return nil, 0, err
	}
	return inst, int64(n) + int64(size), nil
}

// Undo inverts one trail entry against this machine's tape, segment table
// and register file.
func (m *Machine) Undo(e trails.Entry) error {
	if m.tape.Undo(e) {
		return nil
	}
	if ok, err := m.segments.Undo(e); ok {
		return err
	}
	switch e.Kind {
	case trails.KindRegister:
		if e.Reg < 0 || e.Reg >= len(m.regs) {
			return faults.Namef(faults.ErrUnknownRegister, "r%d", e.Reg)
		}
		m.regs[e.Reg] = e.OldValue
	case trails.KindStep:
		m.ip = e.IP
		m.sp = e.SP
		m.fp = e.FP
		m.flags = FlagsFromBits(e.Flags)
		m.halted = false
		m.fault = nil
	case trails.KindMerge:
	default:
		return fmt.Errorf("cannot undo %v", e)
	}
	return nil
}

// RewindTo pops the trail back to the token and then installs the state.
func (m *Machine) RewindTo(token trails.Token, state State) error {
	if err := m.Trail().RewindTo(token, m.Undo); err != nil {
		return err
	}
	if err := m.SetState(state); err != nil {
		return err
	}
	return m.verify()
}

func (m *Machine) verify() error {
	if !m.config.Verify {
		return nil
	}
	rebuilt := segments.Rebuild(m.tape).All()
	current := m.segments.All()
	if !slices.EqualFunc(rebuilt, current, func(a, b segments.Segment) bool {
		return a.Name == b.Name && a.Start == b.Start && a.Size == b.Size && a.Type == b.Type
	}) {
		return fmt.Errorf("segment table diverged from trail: %v != %v", current, rebuilt)
	}
	return nil
}

// Clone returns an independent deep copy sharing no mutable state.
func (m *Machine) Clone() *Machine {
	tape := m.tape.Clone()
	ret := &Machine{
		config:   m.config,
		logger:   m.logger,
		tape:     tape,
		segments: m.segments.Clone(tape),
		regs:     slices.Clone(m.regs),
		flags:    m.flags,
		ip:       m.ip,
		sp:       m.sp,
		fp:       m.fp,
		halted:   m.halted,
		fault:    m.fault,
	}
	return ret
}
