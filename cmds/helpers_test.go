package cmds

import (
	"fmt"
	"testing"
)

func TestVar(t *testing.T) {
	steps := Var[int]("-TestVar-steps")
	label := Var[string]("-TestVar-label")
	GlobalExecutor.MustExecute([]string{
		"-TestVar-steps", "0x10",
		"-TestVar-label", "b",
	})
	if *steps != 16 {
		t.Fatalf("got %d", *steps)
	}
	if *label != "b" {
		t.Fatalf("got %q", *label)
	}
	GlobalExecutor.MustExecute([]string{
		"-TestVar-steps.",
	})
	if *steps != 0 {
		t.Fatalf("got %d", *steps)
	}
}

func TestBoolVar(t *testing.T) {
	verify := Var[bool]("-TestBoolVar")
	GlobalExecutor.MustExecute([]string{
		"-TestBoolVar", "on",
	})
	if !*verify {
		t.Fatal("should be set")
	}
	if err := GlobalExecutor.Execute([]string{
		"-TestBoolVar", "sometimes",
	}); err == nil {
		t.Fatal("should error")
	}
	if !*verify {
		t.Fatal("bad value should not change the flag")
	}
}

func TestSwitch(t *testing.T) {
	tap := Switch("-TestSwitch")
	GlobalExecutor.MustExecute([]string{
		"-TestSwitch",
	})
	if !*tap {
		t.Fatal("should be on")
	}
	GlobalExecutor.MustExecute([]string{
		"!-TestSwitch",
	})
	if *tap {
		t.Fatal("should be off")
	}
}

func TestCollect(t *testing.T) {
	forks := Collect[string]("-TestCollect")
	GlobalExecutor.MustExecute([]string{
		"-TestCollect", "b",
		"-TestCollect", "c",
	})
	if str := fmt.Sprintf("%v", *forks); str != "[b c]" {
		t.Fatalf("got %s", str)
	}
}

func TestTypedVar(t *testing.T) {
	type Strategy string
	v := Var[Strategy]("-TestTypedVar")
	GlobalExecutor.MustExecute([]string{
		"-TestTypedVar", "combine",
	})
	if *v != "combine" {
		t.Fatalf("got %q", *v)
	}
}

func TestFuncSignature(t *testing.T) {
	for _, fn := range []any{
		42,
		func() (int, error) { return 0, nil },
		func() int { return 0 },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%T should panic", fn)
				}
			}()
			Func(fn)
		}()
	}
}
