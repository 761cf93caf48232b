package machines

import "fmt"

type OpCode uint8

const (
	OpNop OpCode = iota + 1
	OpHalt
	OpDebug

	OpSwap
	OpCSwap
	OpXor
	OpNeg
	OpNot

	OpAdd
	OpSub
	OpAddi
	OpRol
	OpRor

	OpMul
	OpMov
	OpLi
	OpCmp
	OpEq
	OpLt

	OpLoad
	OpStore
	OpXchg
	OpPush
	OpPop

	OpTRead
	OpTWrite
	OpSeek
	OpSeekR
	OpAdv
	OpMark
	OpSeekMark

	OpSCreate
	OpSRead
	OpSWrite
	OpSSeek

	OpJmp
	OpBz
	OpBnz
	OpCall
	OpRet

	numOps
)

// Class is the reversibility class of an instruction.
type Class uint8

const (
	SelfInverse Class = iota + 1
	Algebraic
	TrailDependent
	ControlTransfer
)

func (c Class) String() string {
	switch c {
	case SelfInverse:
		return "self-inverse"
	case Algebraic:
		return "algebraic"
	case TrailDependent:
		return "trail-dependent"
	case ControlTransfer:
		return "control-transfer"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

type operands uint8

const (
	withDst operands = 1 << iota
	withA
	withB
	withImm
	withName
	withTarget
)

type opInfo struct {
	name     string
	operands operands
	class    Class
}

var opInfos = [numOps]opInfo{
	OpNop:   {"nop", 0, SelfInverse},
	OpHalt:  {"halt", 0, ControlTransfer},
	OpDebug: {"debug", withName, SelfInverse},

	OpSwap:  {"swap", withA | withB, SelfInverse},
	OpCSwap: {"cswap", withDst | withA | withB, SelfInverse},
	OpXor:   {"xor", withDst | withA | withB, SelfInverse},
	OpNeg:   {"neg", withDst, SelfInverse},
	OpNot:   {"not", withDst, SelfInverse},

	OpAdd:  {"add", withDst | withA | withB, Algebraic},
	OpSub:  {"sub", withDst | withA | withB, Algebraic},
	OpAddi: {"addi", withDst | withImm, Algebraic},
	OpRol:  {"rol", withDst | withA | withB, Algebraic},
	OpRor:  {"ror", withDst | withA | withB, Algebraic},

	OpMul: {"mul", withDst | withA | withB, TrailDependent},
	OpMov: {"mov", withDst | withA, TrailDependent},
	OpLi:  {"li", withDst | withImm, TrailDependent},
	OpCmp: {"cmp", withDst | withA | withB, TrailDependent},
	OpEq:  {"eq", withDst | withA | withB, TrailDependent},
	OpLt:  {"lt", withDst | withA | withB, TrailDependent},

	OpLoad:  {"load", withDst | withA, TrailDependent},
	OpStore: {"store", withA | withB, TrailDependent},
	OpXchg:  {"xchg", withA | withB, TrailDependent},
	OpPush:  {"push", withA, TrailDependent},
	OpPop:   {"pop", withDst, TrailDependent},

	OpTRead:    {"tread", withDst | withImm, TrailDependent},
	OpTWrite:   {"twrite", withA | withImm, TrailDependent},
	OpSeek:     {"seek", withImm, TrailDependent},
	OpSeekR:    {"seekr", withA, TrailDependent},
	OpAdv:      {"adv", withImm, TrailDependent},
	OpMark:     {"mark", withName, TrailDependent},
	OpSeekMark: {"seekmark", withName, TrailDependent},

	OpSCreate: {"screate", withDst | withA | withImm | withName, TrailDependent},
	OpSRead:   {"sread", withDst | withA | withImm | withName, TrailDependent},
	OpSWrite:  {"swrite", withA | withB | withImm | withName, TrailDependent},
	OpSSeek:   {"sseek", withA | withName, TrailDependent},

	OpJmp:  {"jmp", withTarget, ControlTransfer},
	OpBz:   {"bz", withA | withTarget, ControlTransfer},
	OpBnz:  {"bnz", withA | withTarget, ControlTransfer},
	OpCall: {"call", withTarget, ControlTransfer},
	OpRet:  {"ret", 0, ControlTransfer},
}

func (o OpCode) Valid() bool {
	return o > 0 && o < numOps
}

func (o OpCode) String() string {
	if o.Valid() {
		return opInfos[o].name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

var opsByName = func() map[string]OpCode {
	ret := make(map[string]OpCode, numOps)
	for op := OpCode(1); op < numOps; op++ {
		ret[opInfos[op].name] = op
	}
	return ret
}()

func ParseOpCode(name string) (OpCode, bool) {
	op, ok := opsByName[name]
	return op, ok
}

// OpCodes lists every defined opcode in numeric order.
func OpCodes() []OpCode {
	ret := make([]OpCode, 0, numOps-1)
	for op := OpCode(1); op < numOps; op++ {
		ret = append(ret, op)
	}
	return ret
}
