package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := Boundsf(ErrOutOfBounds, "segment %q offset %d", "data", 10)
	if !errors.Is(err, Bounds) {
		t.Fatal("should match kind")
	}
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatal("should match sentinel")
	}
	if errors.Is(err, Name) {
		t.Fatal("should not match other kind")
	}
	if err.Error() != `bounds error: out of bounds: segment "data" offset 10` {
		t.Fatalf("got %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("step: %w", Namef(ErrUnknownRegister, "r%d", 99))
	kind, ok := KindOf(wrapped)
	if !ok || kind != Name {
		t.Fatalf("got %v %v", kind, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("plain error has no kind")
	}
}

func TestFatal(t *testing.T) {
	for _, kind := range []Kind{Decode, Bounds, Name} {
		if !kind.Fatal() {
			t.Fatalf("%v should be fatal", kind)
		}
	}
	if MergeConflict.Fatal() {
		t.Fatal("merge conflict is recoverable")
	}
}
