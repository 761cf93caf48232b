package modes

import (
	"testing"

	"github.com/reusee/dscope"
)

// ModuleForProduction is the mode of the revtape binary: machines check
// segments against the trail on undo only when configured to, and no
// testing.TB is bound.
type ModuleForProduction struct {
	dscope.Module
}

func ForProduction() ModuleForProduction {
	return ModuleForProduction{}
}

func (ModuleForProduction) TB() testing.TB {
	return nil
}

func (ModuleForProduction) Mode() Mode {
	return ModeProduction
}
