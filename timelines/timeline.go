package timelines

import (
	"slices"

	"github.com/reusee/revtape/machines"
	"github.com/reusee/revtape/segments"
	"github.com/reusee/revtape/trails"
)

// Checkpoint is a named point on one timeline's history.
type Checkpoint struct {
	Name  string
	Token trails.Token
	State machines.State
}

// Timeline owns its machine outright. Forks copy; nothing is shared.
type Timeline struct {
	label       string
	machine     *machines.Machine
	checkpoints []Checkpoint
	discarded   bool
}

func (t *Timeline) clone(label string) *Timeline {
	ret := &Timeline{
		label:   label,
		machine: t.machine.Clone(),
	}
	for _, cp := range t.checkpoints {
		cp.State = cp.State.Clone()
		ret.checkpoints = append(ret.checkpoints, cp)
	}
	return ret
}

func (t *Timeline) checkpoint(name string) (int, bool) {
	idx := slices.IndexFunc(t.checkpoints, func(cp Checkpoint) bool {
		return cp.Name == name
	})
	return idx, idx >= 0
}

// prune drops checkpoints whose history was stepped back over.
func (t *Timeline) prune() {
	trail := t.machine.Trail()
	t.checkpoints = slices.DeleteFunc(t.checkpoints, func(cp Checkpoint) bool {
		return !trail.Valid(cp.Token)
	})
}

// Info is a read-only view of a timeline.
type Info struct {
	Label       string
	Current     bool
	Discarded   bool
	State       machines.State
	Checkpoints []string
	Segments    []segments.Segment
	Head        int64
	Trail       []trails.Entry
}

func (t *Timeline) info(current bool) Info {
	info := Info{
		Label:     t.label,
		Current:   current,
		Discarded: t.discarded,
		State:     t.machine.State(),
		Segments:  t.machine.Segments().All(),
		Head:      t.machine.Tape().Head(),
		Trail:     t.machine.Trail().Since(trails.Token{}),
	}
	for _, cp := range t.checkpoints {
		info.Checkpoints = append(info.Checkpoints, cp.Name)
	}
	return info
}
