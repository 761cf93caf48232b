package debugs

import (
	"fmt"

	"github.com/reusee/revtape/machines"
	"github.com/reusee/revtape/tapes"
	"go.starlark.net/starlark"
)

// MaxRead bounds the byte count of one read or segment call.
const MaxRead = tapes.PageSize * 16

func checkLength(fn *starlark.Builtin, n int) error {
	if n < 0 || n > MaxRead {
		return fmt.Errorf("%s: length %d not in [0, %d]", fn.Name(), n, MaxRead)
	}
	return nil
}

// MachineGlobals exposes m to a tap session. Besides plain snapshots of the
// register file and segment table, it binds:
//
//	read(pos, n)          tape bytes as bytes
//	segment(name, off, n) segment bytes as bytes
//	trail(n)              the last n trail entries as strings
func MachineGlobals(m *machines.Machine) map[string]any {
	globals := map[string]any{
		"state":    m.State(),
		"segments": m.Segments().All(),
		"head":     m.Tape().Head(),
		"marks":    m.Tape().Marks(),
		"halted":   m.Halted(),
	}
	if fault := m.Fault(); fault != nil {
		globals["fault"] = fault.Error()
	}

	globals["read"] = starlark.NewBuiltin("read", func(
		thread *starlark.Thread,
		fn *starlark.Builtin,
		args starlark.Tuple,
		kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var pos int64
		var n int
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &pos, &n); err != nil {
			return nil, err
		}
		if err := checkLength(fn, n); err != nil {
			return nil, err
		}
		return starlark.Bytes(m.Tape().Read(pos, n)), nil
	})

	globals["segment"] = starlark.NewBuiltin("segment", func(
		thread *starlark.Thread,
		fn *starlark.Builtin,
		args starlark.Tuple,
		kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var name string
		var offset int64
		var n int
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 3, &name, &offset, &n); err != nil {
			return nil, err
		}
		if err := checkLength(fn, n); err != nil {
			return nil, err
		}
		data, err := m.Segments().Read(name, offset, n)
		if err != nil {
			return nil, err
		}
		return starlark.Bytes(data), nil
	})

	globals["trail"] = starlark.NewBuiltin("trail", func(
		thread *starlark.Thread,
		fn *starlark.Builtin,
		args starlark.Tuple,
		kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var n int
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &n); err != nil {
			return nil, err
		}
		trail := m.Trail()
		start := max(trail.Len()-max(n, 0), 0)
		var elems []starlark.Value
		for i := start; i < trail.Len(); i++ {
			elems = append(elems, starlark.String(trail.At(i).String()))
		}
		return starlark.NewList(elems), nil
	})

	return globals
}
