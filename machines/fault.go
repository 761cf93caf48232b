package machines

import (
	"fmt"

	"github.com/reusee/revtape/faults"
)

// Fault is a fatal execution error. The faulting instruction has no effect;
// the machine stays halted until rewound or stepped back.
type Fault struct {
	IP   int64
	Inst *Instruction
	Err  error
}

func (f *Fault) Error() string {
	if f.Inst == nil {
		return fmt.Sprintf("fault at ip %d: %v", f.IP, f.Err)
	}
	return fmt.Sprintf("fault at ip %d (%v): %v", f.IP, f.Inst, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// FaultImage is the persisted form of a Fault. The error keeps its message and
// fault kind; wrapped sentinels are not preserved.
type FaultImage struct {
	IP      int64
	Inst    *Instruction
	Kind    faults.Kind
	Message string
}

func (f *Fault) image() *FaultImage {
	img := &FaultImage{
		IP:   f.IP,
		Inst: f.Inst,
	}
	if f.Err != nil {
		img.Message = f.Err.Error()
		img.Kind, _ = faults.KindOf(f.Err)
	}
	return img
}

func (f *FaultImage) fault() *Fault {
	return &Fault{
		IP:   f.IP,
		Inst: f.Inst,
		Err: restoredError{
			kind:    f.Kind,
			message: f.Message,
		},
	}
}

type restoredError struct {
	kind    faults.Kind
	message string
}

func (e restoredError) Error() string {
	return e.message
}

func (e restoredError) Is(target error) bool {
	kind, ok := target.(faults.Kind)
	return ok && e.kind != 0 && kind == e.kind
}
