package machines

import (
	"github.com/reusee/dscope"
	"github.com/reusee/revtape/configs"
	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/modes"
)

type Module struct {
	dscope.Module
	Configs configs.Module
	Logs    logs.Module
}

func (Module) Config(
	loader configs.Loader,
	mode modes.Mode,
) Config {
	config := configs.First[Config](loader, "machine")
	if mode == modes.ModeDevelopment {
		config.Verify = true
	}
	return config.WithDefaults()
}

type NewMachine func() (*Machine, error)

func (Module) NewMachine(
	config Config,
	logger logs.Logger,
) NewMachine {
	return func() (*Machine, error) {
		return New(config, logger)
	}
}
