package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/reusee/dscope"
	"github.com/reusee/revtape/cmds"
	"github.com/reusee/revtape/configs"
	"github.com/reusee/revtape/debugs"
	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/machines"
	"github.com/reusee/revtape/modes"
	"github.com/reusee/revtape/timelines"
	"github.com/reusee/revtape/vars"
)

var (
	stateFile = cmds.Var[string]("-state", "gob file with every timeline, loaded if present and written back on exit")
	dbPath    = cmds.Var[string]("-db", "sqlite database holding snapshots")
	snapshot  = cmds.Var[string]("-snapshot", "snapshot name to resume from and save to")
	steps     = cmds.Var[int]("-steps", "execute at most n instructions instead of running to halt")
	back      = cmds.Var[int]("-back", "step back n instructions after running")
	forks     = cmds.Collect[string]("-fork", "fork a timeline before running; every live timeline runs in parallel")
	mergeFrom = cmds.Var[string]("-merge", "merge the named timeline into the current one after running")
	strategy  = cmds.Var[string]("-strategy", "merge strategy: latest, earliest or combine")
	resolver  = cmds.Var[string]("-resolver", "starlark file defining resolve(pos, current, other) for combine")
	tap       = cmds.Switch("-tap", "open a starlark session on the current machine before exiting")

	tapScriptPath = cmds.Var[string]("-tap-script", "run a starlark file over the current machine before exiting")
)

func main() {
	if err := cmds.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cmds.PrintUsage()
		os.Exit(2)
	}

	scope := dscope.New(
		new(timelines.Module),
		new(debugs.Module),
		new(Module),
		modes.ForProduction(),
	).Fork(
		func() configs.Schema {
			return configs.Schema(machines.ConfigSchema +
				timelines.ConfigSchema +
				machines.SourceSchema)
		},
	)

	var code int
	scope.Call(func(
		newSpan logs.NewSpan,
		logger logs.Logger,
		run Run,
	) {
		ctx, _ := newSpan(context.Background(), "",
			"state", *stateFile,
			"snapshot", *snapshot,
		)
		if *metricsAddr != "" {
			stop := serveMetrics(ctx, logger, *metricsAddr)
			defer stop()
		}
		if err := run(ctx); err != nil {
			logger.ErrorContext(ctx, "revtape", "error", err)
			fmt.Fprintln(os.Stderr, logs.WrapSpan(ctx, err))
			code = exitCode(err)
		}
	})
	if code != 0 {
		os.Exit(code)
	}
}

// exitCode is 3 for a machine fault and 1 for any other error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var fault *machines.Fault
	if errors.As(err, &fault) {
		return 3
	}
	return 1
}

func strategyName() string {
	return vars.FirstNonZero(*strategy, timelines.Latest.String())
}
