package machines

import (
	"fmt"

	"github.com/reusee/revtape/configs"
)

// Source is a program as written in a cue file under the "program" path:
//
//	program: instructions: [
//		{op: "li", dst: 1, imm: 3},
//		{here: "loop", op: "addi", dst: 1, imm: -1},
//		{op: "bnz", a: 1, label: "loop"},
//		{here: "end"},
//	]
//
// An entry without op only binds its label to the next instruction, or to the
// trailing halt when it is last.
type Source struct {
	Instructions []SourceInstruction `json:"instructions"`
}

type SourceInstruction struct {
	Here   string `json:"here"`
	Op     string `json:"op"`
	Dst    int    `json:"dst"`
	A      int    `json:"a"`
	B      int    `json:"b"`
	Imm    int64  `json:"imm"`
	Name   string `json:"name"`
	Label  string `json:"label"`
	Target int64  `json:"target"`
}

const SourceSchema = `
program?: close({
	instructions: [...close({
		here?:   string
		op?:     string
		dst?:    int & >=0 & <256
		a?:      int & >=0 & <256
		b?:      int & >=0 & <256
		imm?:    int
		name?:   string
		label?:  string
		target?: int
	})]
})
`

func (s Source) Compile() (Program, error) {
	program := Program{
		Labels: make(map[string]int),
	}
	for i, src := range s.Instructions {
		if src.Here != "" {
			if _, ok := program.Labels[src.Here]; ok {
				return Program{}, fmt.Errorf("entry %d: duplicated label %s", i, src.Here)
			}
			program.Labels[src.Here] = len(program.Instructions)
		}
		if src.Op == "" {
			if src.Here == "" {
				return Program{}, fmt.Errorf("entry %d: no op", i)
			}
			continue
		}
		op, ok := ParseOpCode(src.Op)
		if !ok {
			return Program{}, fmt.Errorf("entry %d: unknown op %q", i, src.Op)
		}
		program.Instructions = append(program.Instructions, Instruction{
			Op:     op,
			Dst:    Reg(src.Dst),
			A:      Reg(src.A),
			B:      Reg(src.B),
			Imm:    src.Imm,
			Name:   src.Name,
			Label:  src.Label,
			Target: src.Target,
		})
	}
	return program, nil
}

// LoadProgram compiles the first "program" found by loader.
func LoadProgram(loader configs.Loader) (Program, error) {
	var source Source
	if err := loader.AssignFirst("program", &source); err != nil {
		return Program{}, err
	}
	return source.Compile()
}
