package debugs

import (
	"errors"
	"testing"

	"github.com/reusee/revtape/machines"
	"github.com/reusee/revtape/segments"
	"go.starlark.net/starlark"
)

func TestToStarlarkValue(t *testing.T) {
	type segmentInfo struct {
		Name  string
		start int
	}

	heapPtr := &segmentInfo{
		Name:  "heap",
		start: 42,
	}

	read := starlark.NewBuiltin("read", nil)

	testCases := []struct {
		name     string
		input    any
		expected starlark.Value
	}{
		{"nil", nil, starlark.None},
		{"bool true", true, starlark.True},
		{"bool false", false, starlark.False},
		{"bytes", []byte("abc"), starlark.Bytes("abc")},
		{"string", "heap", starlark.String("heap")},
		{"int", int(42), starlark.MakeInt(42)},
		{"int8", int8(42), starlark.MakeInt(42)},
		{"int16", int16(42), starlark.MakeInt(42)},
		{"int32", int32(42), starlark.MakeInt(42)},
		{"int64", int64(42), starlark.MakeInt64(42)},
		{"uint", uint(42), starlark.MakeUint(42)},
		{"uint8", uint8(42), starlark.MakeUint(42)},
		{"uint16", uint16(42), starlark.MakeUint(42)},
		{"uint32", uint32(42), starlark.MakeUint(42)},
		{"uint64", uint64(42), starlark.MakeUint64(42)},
		{"float32", float32(3.14), starlark.Float(float64(float32(3.14)))},
		{"float64", float64(3.14), starlark.Float(3.14)},
		{"[]any", []any{1, "a", true}, starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.String("a"), starlark.True})},
		{"map[string]any", map[string]any{"a": 1, "b": "c"}, func() starlark.Value {
			d := starlark.NewDict(2)
			d.SetKey(starlark.String("a"), starlark.MakeInt(1))
			d.SetKey(starlark.String("b"), starlark.String("c"))
			return d
		}()},
		{"[]int", []int{1, 2, 3}, starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.MakeInt(2), starlark.MakeInt(3)})},
		{"string", []string{"a", "b"}, starlark.NewList([]starlark.Value{starlark.String("a"), starlark.String("b")})},
		{"map[int]bool", map[int]bool{1: true, 2: false}, func() starlark.Value {
			d := starlark.NewDict(2)
			d.SetKey(starlark.MakeInt(1), starlark.True)
			d.SetKey(starlark.MakeInt(2), starlark.False)
			return d
		}()},
		{"struct", segmentInfo{Name: "heap", start: 42}, func() starlark.Value {
			d := starlark.NewDict(1)
			d.SetKey(starlark.String("Name"), starlark.String("heap"))
			return d
		}()},
		{"pointer to struct", heapPtr, func() starlark.Value {
			d := starlark.NewDict(1)
			d.SetKey(starlark.String("Name"), starlark.String("heap"))
			return d
		}()},
		{"pointer to pointer to struct", &heapPtr, func() starlark.Value {
			d := starlark.NewDict(1)
			d.SetKey(starlark.String("Name"), starlark.String("heap"))
			return d
		}()},
		{"nested structure", map[string]any{
			"list": []any{
				segmentInfo{Name: "code"},
				&segmentInfo{Name: "stack"},
			},
		}, func() starlark.Value {
			d := starlark.NewDict(1)
			struct1 := starlark.NewDict(1)
			struct1.SetKey(starlark.String("Name"), starlark.String("code"))
			struct2 := starlark.NewDict(1)
			struct2.SetKey(starlark.String("Name"), starlark.String("stack"))
			list := starlark.NewList([]starlark.Value{struct1, struct2})
			d.SetKey(starlark.String("list"), list)
			return d
		}()},
		{"registers", []int64{0, -1, 1 << 40}, starlark.NewList([]starlark.Value{starlark.MakeInt64(0), starlark.MakeInt64(-1), starlark.MakeInt64(1 << 40)})},
		{"marks", map[string]int64{"loop": 8}, func() starlark.Value {
			d := starlark.NewDict(1)
			d.SetKey(starlark.String("loop"), starlark.MakeInt64(8))
			return d
		}()},
		{"builtin passes through", read, read},
		{"opcode by name", machines.OpLi, starlark.String(machines.OpLi.String())},
		{"segment type by name", segments.Data, starlark.String("data")},
		{"error", errors.New("fault at ip 8"), starlark.String("fault at ip 8")},
		{"nil pointer", (*segmentInfo)(nil), starlark.None},
		{"nil interface", (any)(nil), starlark.None},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := toStarlarkValue(tc.input)
			equal, err := starlark.Equal(actual, tc.expected)
			if err != nil {
				t.Fatalf("comparison failed: %v", err)
			}
			if !equal {
				t.Errorf("toStarlarkValue(%#v) = %v, want %v", tc.input, actual, tc.expected)
			}
		})
	}

	t.Run("panic on unsupported type", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("toStarlarkValue did not panic on unsupported type")
			}
		}()
		toStarlarkValue(make(chan bool))
	})
}
