package timelines

import (
	"fmt"

	"github.com/reusee/starlarkutil"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// StarlarkResolver compiles a script defining resolve(pos, current, other),
// which returns the byte to keep. The script may call segment(pos) to get the
// name of the current timeline's segment holding pos, or "" if none.
func (m *Manager) StarlarkResolver(filename string, src any) (Resolver, error) {
	thread := &starlark.Thread{
		Name: "resolver",
	}
	predeclared := starlark.StringDict{
		"segment": starlarkutil.MakeFunc("segment", func(pos int64) string {
			// called from within a merge, which holds the lock
			seg, ok := m.cur().machine.Segments().Resolve(pos)
			if !ok {
				return ""
			}
			return seg.Name
		}),
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
	}, thread, filename, src, predeclared)
	if err != nil {
		return nil, err
	}
	fn, ok := globals["resolve"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: resolve is not defined", filename)
	}

	return func(pos int64, current, other byte) (byte, error) {
		v, err := starlark.Call(thread, fn, starlark.Tuple{
			starlark.MakeInt64(pos),
			starlark.MakeInt(int(current)),
			starlark.MakeInt(int(other)),
		}, nil)
		if err != nil {
			return 0, err
		}
		n, ok := v.(starlark.Int)
		if !ok {
			return 0, fmt.Errorf("resolve returned %s", v.Type())
		}
		i, ok := n.Int64()
		if !ok || i < 0 || i > 255 {
			return 0, fmt.Errorf("resolve returned %v, not a byte", n)
		}
		return byte(i), nil
	}, nil
}
