package configs

import (
	"github.com/reusee/dscope"
	"github.com/reusee/revtape/cmds"
)

type Module struct {
	dscope.Module
}

var configFiles = cmds.Collect[string]("-config", "load configuration from a cue file")

// Schema is the cue source every loaded file is validated against. The
// empty schema accepts anything.
type Schema string

func (Module) Schema() Schema {
	return ""
}

func (Module) Loader(
	schema Schema,
) Loader {
	return NewLoader(*configFiles, string(schema))
}
