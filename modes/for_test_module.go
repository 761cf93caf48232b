package modes

import (
	"testing"

	"github.com/reusee/dscope"
)

// ModuleForTest runs machines in development mode, which checks the segment
// table against the trail after every undo. Benchmarks may pass a *testing.B.
type ModuleForTest struct {
	dscope.Module
	tb testing.TB
}

func ForTest(tb testing.TB) ModuleForTest {
	return ModuleForTest{
		tb: tb,
	}
}

func (m ModuleForTest) TB() testing.TB {
	return m.tb
}

func (m ModuleForTest) Mode() Mode {
	return ModeDevelopment
}
