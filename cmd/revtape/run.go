package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/reusee/dscope"
	"github.com/reusee/revtape/configs"
	"github.com/reusee/revtape/debugs"
	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/machines"
	"github.com/reusee/revtape/storages"
	"github.com/reusee/revtape/timelines"
)

type Run func(ctx context.Context) error

type Module struct {
	dscope.Module
}

func (Module) Run(
	logger logs.Logger,
	loader configs.Loader,
	newManager timelines.NewManager,
	config timelines.Config,
	tapFn debugs.Tap,
	tapScript debugs.TapScript,
) Run {
	return func(ctx context.Context) (err error) {
		var store *storages.Snapshots
		if *dbPath != "" {
			store, err = storages.Open(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
		}

		manager, err := resume(ctx, logger, store)
		if err != nil {
			return err
		}
		if manager == nil {
			manager, err = newManager()
			if err != nil {
				return err
			}
			program, err := machines.LoadProgram(loader)
			if err != nil {
				return fmt.Errorf("load program: %w", err)
			}
			if err := manager.With(func(m *machines.Machine) error {
				return m.Load(program)
			}); err != nil {
				return err
			}
		}

		for _, label := range *forks {
			if err := manager.Fork(ctx, label); err != nil {
				return err
			}
		}

		switch {
		case *steps > 0:
			for range *steps {
				if _, err := manager.Step(); err != nil {
					if errors.Is(err, machines.ErrHalted) {
						break
					}
					return err
				}
			}
		case len(*forks) > 0:
			if err := manager.RunParallel(ctx, manager.Labels(), config.Parallelism); err != nil {
				return err
			}
		default:
			if err := manager.Run(ctx); err != nil {
				return err
			}
		}

		if *mergeFrom != "" {
			if err := merge(ctx, manager); err != nil {
				return err
			}
		}

		for range *back {
			if err := manager.StepBack(); err != nil {
				return err
			}
		}

		for _, label := range manager.Labels() {
			info, err := manager.Inspect(label)
			if err != nil {
				return err
			}
			mark := " "
			if info.Current {
				mark = "*"
			}
			fmt.Printf("%s %s: %v\n", mark, label, info.State)
		}

		if *stateFile != "" {
			if err := manager.SaveFile(*stateFile); err != nil {
				return err
			}
		}
		if store != nil && *snapshot != "" {
			if _, err := manager.SaveSnapshot(ctx, store, *snapshot); err != nil {
				return err
			}
		}

		if *tapScriptPath != "" {
			if err := manager.With(func(m *machines.Machine) error {
				_, err := tapScript(ctx, manager.Current(), debugs.MachineGlobals(m), *tapScriptPath)
				return err
			}); err != nil {
				return err
			}
		}
		if *tap {
			return manager.With(func(m *machines.Machine) error {
				tapFn(ctx, manager.Current(), debugs.MachineGlobals(m))
				return nil
			})
		}
		return nil
	}
}

// resume returns nil when there is nothing to resume from.
func resume(ctx context.Context, logger logs.Logger, store *storages.Snapshots) (*timelines.Manager, error) {
	if *stateFile != "" {
		if _, err := os.Stat(*stateFile); err == nil {
			return timelines.LoadFile(*stateFile, logger)
		}
	}
	if store != nil && *snapshot != "" {
		manager, err := timelines.LoadSnapshot(ctx, store, "", *snapshot, logger)
		if errors.Is(err, storages.ErrSnapshotNotFound) {
			return nil, nil
		}
		return manager, err
	}
	return nil, nil
}

func merge(ctx context.Context, manager *timelines.Manager) error {
	s, ok := timelines.ParseStrategy(strategyName())
	if !ok || s == timelines.Manual {
		return fmt.Errorf("%w: %s", timelines.ErrBadStrategy, strategyName())
	}
	var opts []timelines.MergeOption
	if *resolver != "" {
		fn, err := manager.StarlarkResolver(*resolver, nil)
		if err != nil {
			return err
		}
		opts = append(opts, timelines.WithResolver(fn))
	}
	return manager.Merge(ctx, s, *mergeFrom, opts...)
}
