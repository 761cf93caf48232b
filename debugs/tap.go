package debugs

import (
	"context"
	"maps"
	"slices"

	"github.com/reusee/revtape/logs"
	"go.starlark.net/repl"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
}

func predeclare(globals map[string]any) starlark.StringDict {
	ret := make(starlark.StringDict, len(globals))
	for name, value := range globals {
		ret[name] = toStarlarkValue(value)
	}
	return ret
}

// Tap opens a starlark prompt over globals, usually MachineGlobals of a
// halted timeline. what names the timeline in the logs.
type Tap func(ctx context.Context, what string, globals map[string]any)

func (Module) Tap(
	logger logs.Logger,
) Tap {
	return func(ctx context.Context, what string, globals map[string]any) {
		logger.InfoContext(ctx, "tap",
			"what", what,
			"globals", slices.Sorted(maps.Keys(globals)),
		)
		defer func() {
			logger.InfoContext(ctx, "tap end", "what", what)
		}()
		thread := &starlark.Thread{
			Name: "tap " + what,
		}
		repl.REPLOptions(fileOptions, thread, predeclare(globals))
	}
}

// TapScript runs the starlark file at path over globals without a prompt.
// print goes to the logger.
type TapScript func(ctx context.Context, what string, globals map[string]any, path string) (starlark.StringDict, error)

func (Module) TapScript(
	logger logs.Logger,
) TapScript {
	return func(ctx context.Context, what string, globals map[string]any, path string) (starlark.StringDict, error) {
		thread := &starlark.Thread{
			Name: "tap " + what,
			Print: func(_ *starlark.Thread, msg string) {
				logger.InfoContext(ctx, "tap print", "what", what, "msg", msg)
			},
		}
		ret, err := starlark.ExecFileOptions(fileOptions, thread, path, nil, predeclare(globals))
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "tap script", "what", what, "path", path)
		return ret, nil
	}
}
