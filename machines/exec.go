package machines

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"math/bits"

	"github.com/reusee/revtape/faults"
	"github.com/reusee/revtape/segments"
	"github.com/reusee/revtape/trails"
)

// Step executes one instruction. A failing instruction is rolled back before
// the machine halts with a *Fault.
func (m *Machine) Step() (*Instruction, error) {
	if m.fault != nil {
		return nil, m.fault
	}
	if m.halted {
		return nil, ErrHalted
	}
	inst, size, err := m.Fetch()
	if err != nil {
		return nil, m.fail(nil, err)
	}
	if err := m.checkRegisters(inst); err != nil {
		return inst, m.fail(inst, err)
	}
	trail := m.Trail()
	token := trail.Mark("")
	trail.Record(trails.Entry{
		Kind:  trails.KindStep,
		IP:    m.ip,
		SP:    m.sp,
		FP:    m.fp,
		Flags: m.flags.Bits(),
	})
	if err := m.apply(inst, m.ip+size); err != nil {
		if undoErr := trail.RewindTo(token, m.Undo); undoErr != nil {
			err = errors.Join(err, undoErr)
		}
		return inst, m.fail(inst, err)
	}
	return inst, nil
}

func (m *Machine) fail(inst *Instruction, err error) error {
	m.fault = &Fault{
		IP:   m.ip,
		Inst: inst,
		Err:  err,
	}
	m.halted = true
	m.logger.Warn("machine fault",
		"ip", m.ip,
		"inst", inst,
		"error", err,
	)
	return m.fault
}

func (m *Machine) checkRegisters(inst *Instruction) error {
	for _, r := range inst.registers() {
		if int(r) >= len(m.regs) {
			return faults.Namef(faults.ErrUnknownRegister, "%v", r)
		}
	}
	return nil
}

// Run executes until halt, fault or the configured step limit.
func (m *Machine) Run(yield func(*Instruction, error) bool) {
	for steps := 0; ; steps++ {
		if m.config.MaxSteps > 0 && steps >= m.config.MaxSteps {
			yield(nil, ErrStepLimit)
			return
		}
		inst, err := m.Step()
		if errors.Is(err, ErrHalted) {
			return
		}
		if !yield(inst, err) {
			return
		}
		if err != nil || m.halted {
			return
		}
	}
}

func (m *Machine) RunContext(ctx context.Context) error {
	for _, err := range m.Run {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// StepBack undoes the last executed instruction exactly. A merge boundary is
// undone as a whole.
func (m *Machine) StepBack() error {
	trail := m.Trail()
	idx := -1
	for i := trail.Len() - 1; i >= 0; i-- {
		if kind := trail.At(i).Kind; kind == trails.KindStep || kind == trails.KindMerge {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNoHistory
	}
	boundary := trail.At(idx)
	if err := trail.RewindTo(trail.TokenAt(idx), m.Undo); err != nil {
		return err
	}
	if boundary.Kind == trails.KindStep {
		inst, _, err := m.Fetch()
		if err != nil {
			return err
		}
		if inv, ok := inst.Inverse(); ok && inst.Op != OpDebug {
			if err := m.apply(&inv, m.ip); err != nil {
				return err
			}
		}
	}
	return m.verify()
}

func (m *Machine) StepBackN(n int) error {
	for range n {
		if err := m.StepBack(); err != nil {
			return err
		}
	}
	return nil
}

func le(v int64) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(v))
}

func width(n int64) (int, error) {
	if n < 1 || n > 8 {
		return 0, faults.Boundsf(faults.ErrOutOfBounds, "width %d", n)
	}
	return int(n), nil
}

func word(bs []byte) int64 {
	var buf [8]byte
	copy(buf[:], bs)
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// set writes a register, recording the pre-image when inst cannot be
// inverted from its operands.
func (m *Machine) set(inst *Instruction, r Reg, v int64) {
	if inst.Class() == TrailDependent {
		m.Trail().Record(trails.Entry{
			Kind:     trails.KindRegister,
			Reg:      int(r),
			OldValue: m.regs[r],
			NewValue: v,
		})
	}
	m.regs[r] = v
}

func (m *Machine) setFlags(inst *Instruction, flags Flags) {
	if inst.Class() != TrailDependent {
		return
	}
	m.flags = flags
}

func (m *Machine) push(v int64) error {
	stack, err := m.segments.Get(SegmentStack)
	if err != nil {
		return err
	}
	sp := m.sp - 8
	if sp < stack.Start || sp+8 > stack.End() {
		return faults.Boundsf(faults.ErrStackOverflow, "sp %d", m.sp)
	}
	if err := m.segments.Write(SegmentStack, sp-stack.Start, le(v)); err != nil {
		return err
	}
	m.sp = sp
	return nil
}

func (m *Machine) pop() (int64, error) {
	stack, err := m.segments.Get(SegmentStack)
	if err != nil {
		return 0, err
	}
	if m.sp < stack.Start || m.sp+8 > stack.End() {
		return 0, faults.Boundsf(faults.ErrStackUnderflow, "sp %d", m.sp)
	}
	bs, err := m.segments.Read(SegmentStack, m.sp-stack.Start, 8)
	if err != nil {
		return 0, err
	}
	m.sp += 8
	return word(bs), nil
}

func (m *Machine) apply(inst *Instruction, next int64) error {
	r := m.regs
	ip := m.ip
	m.ip = next

	switch inst.Op {

	case OpNop:

	case OpHalt:
		m.ip = ip
		m.halted = true

	case OpDebug:
		m.logger.Debug("debug",
			"message", inst.Name,
			"state", m.State(),
		)

	case OpSwap:
		r[inst.A], r[inst.B] = r[inst.B], r[inst.A]

	case OpCSwap:
		if r[inst.Dst] != 0 {
			a, b := r[inst.A], r[inst.B]
			m.set(inst, inst.A, b)
			m.set(inst, inst.B, a)
		}

	case OpXor:
		v := r[inst.A] ^ r[inst.B]
		m.set(inst, inst.Dst, v)
		m.setFlags(inst, resultFlags(v))

	case OpNeg:
		r[inst.Dst] = -r[inst.Dst]

	case OpNot:
		r[inst.Dst] = ^r[inst.Dst]

	case OpAdd:
		a, b := r[inst.A], r[inst.B]
		sum, carry := bits.Add64(uint64(a), uint64(b), 0)
		v := int64(sum)
		m.set(inst, inst.Dst, v)
		flags := resultFlags(v)
		flags.Carry = carry != 0
		flags.Overflow = (a >= 0) == (b >= 0) && (v >= 0) != (a >= 0)
		m.setFlags(inst, flags)

	case OpSub:
		a, b := r[inst.A], r[inst.B]
		diff, borrow := bits.Sub64(uint64(a), uint64(b), 0)
		v := int64(diff)
		m.set(inst, inst.Dst, v)
		flags := resultFlags(v)
		flags.Carry = borrow != 0
		flags.Overflow = (a >= 0) != (b >= 0) && (v >= 0) != (a >= 0)
		m.setFlags(inst, flags)

	case OpAddi:
		m.set(inst, inst.Dst, r[inst.Dst]+inst.Imm)

	case OpRol:
		v := int64(bits.RotateLeft64(uint64(r[inst.A]), int(r[inst.B]&63)))
		m.set(inst, inst.Dst, v)
		m.setFlags(inst, resultFlags(v))

	case OpRor:
		v := int64(bits.RotateLeft64(uint64(r[inst.A]), -int(r[inst.B]&63)))
		m.set(inst, inst.Dst, v)
		m.setFlags(inst, resultFlags(v))

	case OpMul:
		a, b := r[inst.A], r[inst.B]
		v := a * b
		hi, _ := bits.Mul64(uint64(a), uint64(b))
		m.set(inst, inst.Dst, v)
		flags := resultFlags(v)
		flags.Carry = hi != 0
		flags.Overflow = a != 0 && (v/a != b || (a == -1 && b == math.MinInt64))
		m.setFlags(inst, flags)

	case OpMov:
		m.set(inst, inst.Dst, r[inst.A])

	case OpLi:
		m.set(inst, inst.Dst, inst.Imm)

	case OpCmp:
		a, b := r[inst.A], r[inst.B]
		v := int64(cmp.Compare(a, b))
		m.set(inst, inst.Dst, v)
		flags := resultFlags(v)
		flags.Carry = uint64(a) < uint64(b)
		m.setFlags(inst, flags)

	case OpEq:
		v := boolInt(r[inst.A] == r[inst.B])
		m.set(inst, inst.Dst, v)
		m.setFlags(inst, resultFlags(v))

	case OpLt:
		v := boolInt(r[inst.A] < r[inst.B])
		m.set(inst, inst.Dst, v)
		m.setFlags(inst, resultFlags(v))

	case OpLoad:
		m.set(inst, inst.Dst, word(m.tape.Read(r[inst.A], 8)))

	case OpStore:
		m.tape.Write(r[inst.A], le(r[inst.B]))

	case OpXchg:
		addr := r[inst.A]
		old := word(m.tape.Read(addr, 8))
		m.tape.Write(addr, le(r[inst.B]))
		m.set(inst, inst.B, old)

	case OpPush:
		return m.push(r[inst.A])

	case OpPop:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.set(inst, inst.Dst, v)

	case OpTRead:
		n, err := width(inst.Imm)
		if err != nil {
			return err
		}
		m.set(inst, inst.Dst, word(m.tape.ReadHead(n)))

	case OpTWrite:
		n, err := width(inst.Imm)
		if err != nil {
			return err
		}
		m.tape.WriteHead(le(r[inst.A])[:n])

	case OpSeek:
		m.tape.Seek(inst.Imm)

	case OpSeekR:
		m.tape.Seek(r[inst.A])

	case OpAdv:
		m.tape.Advance(inst.Imm)

	case OpMark:
		m.tape.Mark(inst.Name)

	case OpSeekMark:
		return m.tape.SeekMark(inst.Name)

	case OpSCreate:
		typ := segments.Type(inst.Imm)
		if inst.Imm < 0 || inst.Imm > math.MaxUint8 || !typ.Valid() {
			return faults.Decodef(nil, "segment type %d", inst.Imm)
		}
		start, err := m.segments.Create(inst.Name, r[inst.A], typ)
		if err != nil {
			return err
		}
		m.set(inst, inst.Dst, start)

	case OpSRead:
		n, err := width(inst.Imm)
		if err != nil {
			return err
		}
		bs, err := m.segments.Read(inst.Name, r[inst.A], n)
		if err != nil {
			return err
		}
		m.set(inst, inst.Dst, word(bs))

	case OpSWrite:
		n, err := width(inst.Imm)
		if err != nil {
			return err
		}
		return m.segments.Write(inst.Name, r[inst.A], le(r[inst.B])[:n])

	case OpSSeek:
		return m.segments.Seek(inst.Name, r[inst.A])

	case OpJmp:
		m.ip = inst.Target

	case OpBz:
		if r[inst.A] == 0 {
			m.ip = inst.Target
		}

	case OpBnz:
		if r[inst.A] != 0 {
			m.ip = inst.Target
		}

	case OpCall:
		if err := m.push(next); err != nil {
			return err
		}
		if err := m.push(m.fp); err != nil {
			return err
		}
		m.fp = m.sp
		m.ip = inst.Target

	case OpRet:
		m.sp = m.fp
		fp, err := m.pop()
		if err != nil {
			return err
		}
		ret, err := m.pop()
		if err != nil {
			return err
		}
		m.fp = fp
		m.ip = ret

	default:
		return faults.Decodef(faults.ErrUnknownOpcode, "opcode %d", uint8(inst.Op))
	}

	return nil
}
