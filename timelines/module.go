package timelines

import (
	"github.com/reusee/dscope"
	"github.com/reusee/revtape/configs"
	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/machines"
)

type Module struct {
	dscope.Module
	Machines machines.Module
}

// Config is read from the "timelines" path of the configuration files.
type Config struct {
	// Parallelism bounds RunParallel. Zero runs every listed timeline at once.
	Parallelism int `json:"parallelism"`
}

const ConfigSchema = `
timelines?: close({
	parallelism?: int & >=0
})
`

func (Module) Config(
	loader configs.Loader,
) Config {
	return configs.First[Config](loader, "timelines")
}

type NewManager func() (*Manager, error)

func (Module) NewManager(
	newMachine machines.NewMachine,
	logger logs.Logger,
) NewManager {
	return func() (*Manager, error) {
		machine, err := newMachine()
		if err != nil {
			return nil, err
		}
		return New(machine, logger), nil
	}
}
