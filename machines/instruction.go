package machines

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/reusee/revtape/faults"
)

// Instruction is one decoded instruction. Label names a branch target before
// Load resolves it into Target, a tape position inside the code segment.
type Instruction struct {
	Op     OpCode
	Dst    Reg
	A      Reg
	B      Reg
	Imm    int64
	Name   string
	Label  string
	Target int64
}

// Class reports the reversibility class. It depends on the opcode and on
// register aliasing only: an in-place update can be inverted from the
// surviving operand, an aliased one cannot.
func (i Instruction) Class() Class {
	if !i.Op.Valid() {
		return 0
	}
	switch i.Op {
	case OpAdd, OpSub, OpRol, OpRor:
		if i.Dst == i.A && i.Dst != i.B {
			return Algebraic
		}
		return TrailDependent
	case OpXor:
		if i.Dst == i.A && i.Dst != i.B {
			return SelfInverse
		}
		return TrailDependent
	case OpCSwap:
		if i.Dst != i.A && i.Dst != i.B {
			return SelfInverse
		}
		return TrailDependent
	}
	return opInfos[i.Op].class
}

// Inverse returns the instruction undoing i's register effect. It exists only
// for the self-inverse and algebraic classes.
func (i Instruction) Inverse() (Instruction, bool) {
	switch i.Class() {
	case SelfInverse:
		return i, true
	case Algebraic:
		inv := i
		switch i.Op {
		case OpAdd:
			inv.Op = OpSub
		case OpSub:
			inv.Op = OpAdd
		case OpRol:
			inv.Op = OpRor
		case OpRor:
			inv.Op = OpRol
		case OpAddi:
			inv.Imm = -i.Imm
		}
		return inv, true
	}
	return Instruction{}, false
}

func (i Instruction) String() string {
	var b strings.Builder
	b.WriteString(i.Op.String())
	if !i.Op.Valid() {
		return b.String()
	}
	ops := opInfos[i.Op].operands
	if ops&withName != 0 {
		fmt.Fprintf(&b, " %q", i.Name)
	}
	if ops&withDst != 0 {
		fmt.Fprintf(&b, " %v", i.Dst)
	}
	if ops&withA != 0 {
		fmt.Fprintf(&b, " %v", i.A)
	}
	if ops&withB != 0 {
		fmt.Fprintf(&b, " %v", i.B)
	}
	if ops&withImm != 0 {
		fmt.Fprintf(&b, " %d", i.Imm)
	}
	if ops&withTarget != 0 {
		if i.Label != "" {
			fmt.Fprintf(&b, " %s", i.Label)
		} else {
			fmt.Fprintf(&b, " @%d", i.Target)
		}
	}
	return b.String()
}

func (i Instruction) registers() []Reg {
	if !i.Op.Valid() {
		return nil
	}
	var ret []Reg
	ops := opInfos[i.Op].operands
	if ops&withDst != 0 {
		ret = append(ret, i.Dst)
	}
	if ops&withA != 0 {
		ret = append(ret, i.A)
	}
	if ops&withB != 0 {
		ret = append(ret, i.B)
	}
	return ret
}

// MaxInstructionSize bounds the encoded body of one instruction.
const MaxInstructionSize = 1024

// Encode returns the tape form: a uvarint body length followed by the body
// (opcode byte, register bytes, zigzag varint immediate, uvarint length
// prefixed name, 8-byte little-endian target), each present only when the
// opcode uses it.
func (i Instruction) Encode() ([]byte, error) {
	if !i.Op.Valid() {
		return nil, faults.Decodef(faults.ErrUnknownOpcode, "opcode %d", uint8(i.Op))
	}
	ops := opInfos[i.Op].operands
	body := []byte{byte(i.Op)}
	if ops&withDst != 0 {
		body = append(body, byte(i.Dst))
	}
	if ops&withA != 0 {
		body = append(body, byte(i.A))
	}
	if ops&withB != 0 {
		body = append(body, byte(i.B))
	}
	if ops&withImm != 0 {
		body = binary.AppendVarint(body, i.Imm)
	}
	if ops&withName != 0 {
		body = binary.AppendUvarint(body, uint64(len(i.Name)))
		body = append(body, i.Name...)
	}
	if ops&withTarget != 0 {
		body = binary.LittleEndian.AppendUint64(body, uint64(i.Target))
	}
	if len(body) > MaxInstructionSize {
		return nil, faults.Decodef(faults.ErrTruncated, "%v: encoded size %d", i.Op, len(body))
	}
	ret := binary.AppendUvarint(nil, uint64(len(body)))
	return append(ret, body...), nil
}

type bodyReader struct {
	op   OpCode
	body []byte
	err  error
}

func (r *bodyReader) fail() {
	if r.err == nil {
		r.err = faults.Decodef(faults.ErrTruncated, "%v", r.op)
	}
}

func (r *bodyReader) byte() byte {
	if r.err != nil || len(r.body) < 1 {
		r.fail()
		return 0
	}
	b := r.body[0]
	r.body = r.body[1:]
	return b
}

func (r *bodyReader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.body)
	if n <= 0 {
		r.fail()
		return 0
	}
	r.body = r.body[n:]
	return v
}

func (r *bodyReader) string() string {
	if r.err != nil {
		return ""
	}
	l, n := binary.Uvarint(r.body)
	if n <= 0 || uint64(len(r.body)-n) < l {
		r.fail()
		return ""
	}
	s := string(r.body[n : n+int(l)])
	r.body = r.body[n+int(l):]
	return s
}

func (r *bodyReader) uint64() uint64 {
	if r.err != nil || len(r.body) < 8 {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(r.body)
	r.body = r.body[8:]
	return v
}

// Decode parses an instruction body, without the length prefix.
func Decode(body []byte) (*Instruction, error) {
	if len(body) == 0 {
		return nil, faults.Decodef(faults.ErrTruncated, "empty body")
	}
	op := OpCode(body[0])
	if !op.Valid() {
		return nil, faults.Decodef(faults.ErrUnknownOpcode, "opcode %d", body[0])
	}
	r := &bodyReader{
		op:   op,
		body: body[1:],
	}
	inst := &Instruction{
		Op: op,
	}
	ops := opInfos[op].operands
	if ops&withDst != 0 {
		inst.Dst = Reg(r.byte())
	}
	if ops&withA != 0 {
		inst.A = Reg(r.byte())
	}
	if ops&withB != 0 {
		inst.B = Reg(r.byte())
	}
	if ops&withImm != 0 {
		inst.Imm = r.varint()
	}
	if ops&withName != 0 {
		inst.Name = r.string()
	}
	if ops&withTarget != 0 {
		inst.Target = int64(r.uint64())
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.body) > 0 {
		return nil, faults.Decodef(faults.ErrTruncated, "%v: %d trailing bytes", op, len(r.body))
	}
	return inst, nil
}
