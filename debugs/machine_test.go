package debugs

import (
	"strconv"
	"testing"

	"github.com/reusee/revtape/machines"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

func TestMachineGlobals(t *testing.T) {
	m, err := machines.New(machines.Config{
		CodeSize:  1024,
		StackSize: 64,
		HeapSize:  64,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Load(machines.Program{
		Instructions: []machines.Instruction{
			{Op: machines.OpLi, Dst: 1, Imm: 0x0201},
			{Op: machines.OpLi, Dst: 2, Imm: 0},
			{Op: machines.OpSWrite, A: 2, B: 1, Imm: 2, Name: machines.SegmentHeap},
		},
	}); err != nil {
		t.Fatal(err)
	}
	for _, err := range m.Run {
		if err != nil {
			t.Fatal(err)
		}
	}

	predeclared := make(starlark.StringDict)
	for name, value := range MachineGlobals(m) {
		predeclared[name] = toStarlarkValue(value)
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, &starlark.Thread{}, "test.star", `
heap = segment("heap", 0, 2)
r1 = state["Registers"][1]
last = trail(1)
halted_now = halted
`, predeclared)
	if err != nil {
		t.Fatal(err)
	}
	if heap := globals["heap"]; heap != starlark.Bytes("\x01\x02") {
		t.Fatalf("got %v", heap)
	}
	if r1 := globals["r1"]; r1.String() != "513" {
		t.Fatalf("got %v", r1)
	}
	if last := globals["last"].(*starlark.List); last.Len() != 1 {
		t.Fatalf("got %v", last)
	}
	if globals["halted_now"] != starlark.True {
		t.Fatal("expected halted")
	}
}

func TestMachineGlobalsReadLimit(t *testing.T) {
	m, err := machines.New(machines.Config{
		CodeSize:  1024,
		StackSize: 64,
		HeapSize:  MaxRead * 2,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	predeclared := make(starlark.StringDict)
	for name, value := range MachineGlobals(m) {
		predeclared[name] = toStarlarkValue(value)
	}
	for _, src := range []string{
		"x = read(0, 1 << 40)",
		"x = read(0, -1)",
		"x = segment(\"heap\", 0, " + strconv.Itoa(MaxRead+1) + ")",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := starlark.ExecFileOptions(&syntax.FileOptions{}, &starlark.Thread{}, "test.star", src, predeclared)
			if err == nil {
				t.Fatal("should error")
			}
		})
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, &starlark.Thread{}, "test.star",
		"x = len(read(0, "+strconv.Itoa(MaxRead)+"))", predeclared)
	if err != nil {
		t.Fatal(err)
	}
	if globals["x"].String() != strconv.Itoa(MaxRead) {
		t.Fatalf("got %v", globals["x"])
	}
}
