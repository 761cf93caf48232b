package configs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var testSchema = `
machine?: close({
	heap_size?: int & >0
	max_steps?: int & >=0
})
timelines?: [...string]
`

func TestLoaderAssignFirst(t *testing.T) {
	loader := NewLoader([]string{"test.cue"}, testSchema)

	var heapSize int
	if err := loader.AssignFirst("machine.heap_size", &heapSize); err != nil {
		t.Fatal(err)
	}
	if heapSize != 4096 {
		t.Fatalf("got %d", heapSize)
	}

	var labels []string
	if err := loader.AssignFirst("timelines", &labels); err != nil {
		t.Fatal(err)
	}
	if str := fmt.Sprintf("%v", labels); str != "[main b]" {
		t.Fatalf("got %s", str)
	}

	err := loader.AssignFirst("program", &labels)
	if !errors.Is(err, ErrValueNotFound) {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(err.Error(), "program") {
		t.Fatalf("got %v", err)
	}
}

func TestLoaderDecodeError(t *testing.T) {
	loader := NewLoader([]string{"test.cue"}, testSchema)
	var labels string
	err := loader.AssignFirst("timelines", &labels)
	if err == nil || errors.Is(err, ErrValueNotFound) {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(err.Error(), "test.cue") {
		t.Fatalf("got %v", err)
	}
}

func TestLoaderIterCueValues(t *testing.T) {
	loader := NewLoader([]string{
		"test.cue",
		"test2.cue",
	}, testSchema)

	var sizes []int
	for value, err := range loader.IterCueValues("machine.heap_size") {
		if err != nil {
			t.Fatal(err)
		}
		var n int
		if err := value.Decode(&n); err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, n)
	}
	if str := fmt.Sprintf("%v", sizes); str != "[4096 8192]" {
		t.Fatalf("got %s", str)
	}

	sizes = sizes[:0]
	for n := range All[int](loader, "machine.heap_size") {
		sizes = append(sizes, n)
	}
	if str := fmt.Sprintf("%v", sizes); str != "[4096 8192]" {
		t.Fatalf("got %s", str)
	}

	// only test.cue sets max_steps
	sizes = sizes[:0]
	for n := range All[int](loader, "machine.max_steps") {
		sizes = append(sizes, n)
	}
	if str := fmt.Sprintf("%v", sizes); str != "[100]" {
		t.Fatalf("got %s", str)
	}
}

func TestUnknownField(t *testing.T) {
	loader := NewLoader([]string{
		"test.cue",
		"bad.cue",
	}, testSchema)
	var heapSize int
	err := loader.AssignFirst("machine.heap_size", &heapSize)
	if err == nil {
		t.Fatal("should error")
	}
	if !strings.Contains(err.Error(), "bad.cue") {
		t.Fatalf("got %v", err)
	}
}

func TestBadSchema(t *testing.T) {
	loader := NewLoader([]string{"test.cue"}, "machine?: {")
	var heapSize int
	if err := loader.AssignFirst("machine.heap_size", &heapSize); err == nil {
		t.Fatal("should error")
	}
}
