package modes

import (
	"testing"

	"github.com/reusee/dscope"
)

func TestForProduction(t *testing.T) {
	dscope.New(ForProduction()).Call(func(
		tb testing.TB,
		mode Mode,
	) {
		if mode != ModeProduction {
			t.Fatalf("got %v", mode)
		}
		if tb != nil {
			t.Fatal("production binds no testing.TB")
		}
	})
}

func TestForTest(t *testing.T) {
	dscope.New(ForTest(t)).Call(func(
		tb testing.TB,
		mode Mode,
	) {
		if mode != ModeDevelopment {
			t.Fatalf("got %v", mode)
		}
		if tb != t {
			t.Fatal("should bind the test")
		}
	})
}

func TestModeString(t *testing.T) {
	for mode, str := range map[Mode]string{
		ModeProduction:  "production",
		ModeDevelopment: "development",
		Mode(9):         "mode(9)",
	} {
		if got := mode.String(); got != str {
			t.Fatalf("got %q, want %q", got, str)
		}
	}
}
