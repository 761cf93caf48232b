package cmds

import (
	"fmt"
	"reflect"
)

// Command is one argv word. A leaf holds Func, whose parameters are parsed
// from the words that follow it; a group holds Subs keyed by the next word.
type Command struct {
	Func        reflect.Value
	Subs        map[string]*Command
	Description string
	Aliases     []string
}

func (c *Command) Desc(desc string) *Command {
	c.Description = desc
	return c
}

func (c *Command) Alias(names ...string) *Command {
	c.Aliases = append(c.Aliases, names...)
	return c
}

// Func wraps fn as a leaf command. fn returns nothing or a single error; a
// returned error aborts Execute.
func Func(fn any) *Command {
	fnValue := reflect.ValueOf(fn)
	if fnValue.Kind() != reflect.Func {
		panic(fmt.Errorf("command must be a function, got %T", fn))
	}
	fnType := fnValue.Type()
	switch {
	case fnType.NumOut() > 1:
		panic(fmt.Errorf("command %v returns %d values, want at most one error", fnType, fnType.NumOut()))
	case fnType.NumOut() == 1 && fnType.Out(0) != errorType:
		panic(fmt.Errorf("command %v returns %v, want error", fnType, fnType.Out(0)))
	}
	return &Command{
		Func: fnValue,
	}
}

// Sub groups commands under one word; the words after it select among subs.
func Sub(subs map[string]*Command) *Command {
	return &Command{
		Subs: subs,
	}
}
