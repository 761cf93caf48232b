package machines

import (
	"fmt"
	"slices"

	"github.com/reusee/revtape/faults"
)

// Program is a decoded instruction stream. Labels maps a label to an
// instruction index; index len(Instructions) names the implicit trailing halt.
type Program struct {
	Instructions []Instruction
	Labels       map[string]int
}

// Assemble encodes the program as it will sit on the tape at base, resolving
// labels to tape positions.
func (p Program) Assemble(base int64) ([]byte, error) {
	insts := append(slices.Clone(p.Instructions), Instruction{
		Op: OpHalt,
	})

	// target operands are fixed width, so offsets do not depend on resolution
	offsets := make([]int64, len(insts)+1)
	for i, inst := range insts {
		bs, err := inst.Encode()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		offsets[i+1] = offsets[i] + int64(len(bs))
	}

	out := make([]byte, 0, offsets[len(insts)])
	for i, inst := range insts {
		if opInfos[inst.Op].operands&withTarget != 0 && inst.Label != "" {
			idx, ok := p.Labels[inst.Label]
			if !ok || idx < 0 || idx >= len(insts) {
				return nil, faults.Namef(faults.ErrUnresolvedLabel, "%s at instruction %d", inst.Label, i)
			}
			inst.Target = base + offsets[idx]
		}
		bs, err := inst.Encode()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		out = append(out, bs...)
	}
	return out, nil
}
