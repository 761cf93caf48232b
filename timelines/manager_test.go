package timelines

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/reusee/dscope"
	"github.com/reusee/revtape/faults"
	"github.com/reusee/revtape/machines"
	"github.com/reusee/revtape/modes"
	"github.com/reusee/revtape/segments"
)

func newTestManager(t *testing.T, program machines.Program) *Manager {
	t.Helper()
	var manager *Manager
	dscope.New(new(Module), modes.ForTest(t)).Call(func(
		newManager NewManager,
	) {
		var err error
		manager, err = newManager()
		if err != nil {
			t.Fatal(err)
		}
	})
	if err := manager.With(func(m *machines.Machine) error {
		return m.Load(program)
	}); err != nil {
		t.Fatal(err)
	}
	return manager
}

type snapshot struct {
	info  Info
	pages []machines.Page
}

func takeSnapshot(t *testing.T, manager *Manager, label string) snapshot {
	t.Helper()
	info, err := manager.Inspect(label)
	if err != nil {
		t.Fatal(err)
	}
	var pages []machines.Page
	manager.mu.Lock()
	pages = manager.timelines[label].machine.Image().Pages
	manager.mu.Unlock()
	return snapshot{
		info:  info,
		pages: pages,
	}
}

func (s snapshot) equal(other snapshot) bool {
	return s.info.State.Equal(other.info.State) &&
		reflect.DeepEqual(s.info.Segments, other.info.Segments) &&
		s.info.Head == other.info.Head &&
		len(s.info.Trail) == len(other.info.Trail) &&
		reflect.DeepEqual(s.pages, other.pages)
}

func setRegister(t *testing.T, manager *Manager, r int, v int64) {
	t.Helper()
	if err := manager.With(func(m *machines.Machine) error {
		state := m.State()
		state.Registers[r] = v
		return m.SetState(state)
	}); err != nil {
		t.Fatal(err)
	}
}

func writeSegment(t *testing.T, manager *Manager, name string, offset int64, data []byte) {
	t.Helper()
	if err := manager.With(func(m *machines.Machine) error {
		return m.Segments().Write(name, offset, data)
	}); err != nil {
		t.Fatal(err)
	}
}

func readSegment(manager *Manager, name string, offset int64, n int) (ret []byte, err error) {
	err = manager.With(func(m *machines.Machine) error {
		ret, err = m.Segments().Read(name, offset, n)
		return err
	})
	return
}

var testProgram = machines.Program{
	Instructions: []machines.Instruction{
		{Op: machines.OpLi, Dst: 0, Imm: 3},
		{Op: machines.OpLi, Dst: 1, Imm: 64},
		{Op: machines.OpSCreate, Dst: 2, A: 1, Imm: int64(segments.Data), Name: "buf"},
		{Op: machines.OpStore, A: 2, B: 0},
		{Op: machines.OpPush, A: 0},
		{Op: machines.OpSeek, Imm: -77},
		{Op: machines.OpMark, Name: "x"},
		{Op: machines.OpAdd, Dst: 3, A: 3, B: 0},
		{Op: machines.OpAddi, Dst: 0, Imm: -1},
		{Op: machines.OpBnz, A: 0, Label: "loop"},
		{Op: machines.OpPop, Dst: 4},
		{Op: machines.OpTWrite, A: 3, Imm: 1},
	},
	Labels: map[string]int{
		"loop": 7,
	},
}

func TestCheckpointRewindExact(t *testing.T) {
	manager := newTestManager(t, testProgram)
	ctx := t.Context()

	start := takeSnapshot(t, manager, MainLabel)
	if err := manager.Checkpoint("start"); err != nil {
		t.Fatal(err)
	}
	for range 5 {
		if _, err := manager.Step(); err != nil {
			t.Fatal(err)
		}
	}
	middle := takeSnapshot(t, manager, MainLabel)
	if err := manager.Checkpoint("middle"); err != nil {
		t.Fatal(err)
	}
	if err := manager.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if r := manager.State().Registers; r[3] != 6 || r[4] != 3 {
		t.Fatalf("got %v", r)
	}

	if err := manager.Rewind(ctx, "middle"); err != nil {
		t.Fatal(err)
	}
	if got := takeSnapshot(t, manager, MainLabel); !got.equal(middle) {
		t.Fatalf("got %+v, want %+v", got.info.State, middle.info.State)
	}

	// replay is deterministic
	if err := manager.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if r := manager.State().Registers; r[3] != 6 {
		t.Fatalf("got %v", r)
	}

	if err := manager.Rewind(ctx, "start"); err != nil {
		t.Fatal(err)
	}
	if got := takeSnapshot(t, manager, MainLabel); !got.equal(start) {
		t.Fatalf("got %+v, want %+v", got.info.State, start.info.State)
	}
	if cps := manager.Checkpoints(); !slices.Equal(cps, []string{"start"}) {
		t.Fatalf("got %v", cps)
	}
	if err := manager.Rewind(ctx, "middle"); !errors.Is(err, faults.ErrUnknownCheckpoint) {
		t.Fatalf("got %v", err)
	}
	if manager.Status() != Running {
		t.Fatal("should be running")
	}
}

func TestRewindSegmentCreatedAfterCheckpoint(t *testing.T) {
	manager := newTestManager(t, machines.Program{})
	ctx := t.Context()
	if err := manager.Checkpoint("s"); err != nil {
		t.Fatal(err)
	}
	if err := manager.With(func(m *machines.Machine) error {
		_, err := m.Segments().Create("data", 16, segments.Data)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	writeSegment(t, manager, "data", 0, []byte{1, 2, 3})
	writeSegment(t, manager, "data", 0, []byte{9, 9, 9})
	if err := manager.Rewind(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	_, err := readSegment(manager, "data", 0, 3)
	if !errors.Is(err, faults.Name) {
		t.Fatalf("got %v", err)
	}
}

func TestRewindSegmentCreatedBeforeCheckpoint(t *testing.T) {
	manager := newTestManager(t, machines.Program{})
	ctx := t.Context()
	if err := manager.With(func(m *machines.Machine) error {
		_, err := m.Segments().Create("data", 16, segments.Data)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	writeSegment(t, manager, "data", 0, []byte{4, 5, 6})
	if err := manager.Checkpoint("s"); err != nil {
		t.Fatal(err)
	}
	writeSegment(t, manager, "data", 0, []byte{1, 2, 3})
	writeSegment(t, manager, "data", 0, []byte{9, 9, 9})
	if err := manager.Rewind(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	bs, err := readSegment(manager, "data", 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(bs, []byte{4, 5, 6}) {
		t.Fatalf("got %v", bs)
	}
}

func TestUnknownCheckpoint(t *testing.T) {
	manager := newTestManager(t, machines.Program{})
	err := manager.Rewind(t.Context(), "nope")
	if !errors.Is(err, faults.Name) || !errors.Is(err, faults.ErrUnknownCheckpoint) {
		t.Fatalf("got %v", err)
	}
}

func TestCheckpointReplacesName(t *testing.T) {
	manager := newTestManager(t, testProgram)
	ctx := t.Context()
	if err := manager.Checkpoint("c"); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Step(); err != nil {
		t.Fatal(err)
	}
	if err := manager.Checkpoint("c"); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Step(); err != nil {
		t.Fatal(err)
	}
	if err := manager.Rewind(ctx, "c"); err != nil {
		t.Fatal(err)
	}
	if r := manager.State().Registers; r[0] != 3 || r[1] != 0 {
		t.Fatalf("got %v", r)
	}
}

func TestStepBackPrunesCheckpoints(t *testing.T) {
	manager := newTestManager(t, testProgram)
	if _, err := manager.Step(); err != nil {
		t.Fatal(err)
	}
	if err := manager.Checkpoint("after-first"); err != nil {
		t.Fatal(err)
	}
	if err := manager.StepBack(); err != nil {
		t.Fatal(err)
	}
	if cps := manager.Checkpoints(); len(cps) != 0 {
		t.Fatalf("got %v", cps)
	}
	if err := manager.Rewind(t.Context(), "after-first"); !errors.Is(err, faults.ErrUnknownCheckpoint) {
		t.Fatalf("got %v", err)
	}
}

func TestForkIsolation(t *testing.T) {
	manager := newTestManager(t, testProgram)
	ctx := t.Context()
	for range 3 {
		if _, err := manager.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if err := manager.Checkpoint("c"); err != nil {
		t.Fatal(err)
	}
	if err := manager.Fork(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if !manager.Forked() {
		t.Fatal("should be forked")
	}
	forked := takeSnapshot(t, manager, "b")

	if err := manager.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if got := takeSnapshot(t, manager, "b"); !got.equal(forked) {
		t.Fatal("fork changed by original")
	}

	main := takeSnapshot(t, manager, MainLabel)
	if err := manager.Switch("b"); err != nil {
		t.Fatal(err)
	}
	if cps := manager.Checkpoints(); !slices.Equal(cps, []string{"c"}) {
		t.Fatalf("got %v", cps)
	}
	writeSegment(t, manager, "buf", 0, []byte{42})
	if err := manager.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if got := takeSnapshot(t, manager, MainLabel); !got.equal(main) {
		t.Fatal("original changed by fork")
	}
	if err := manager.Rewind(ctx, "c"); err != nil {
		t.Fatal(err)
	}
	if got := takeSnapshot(t, manager, "b"); !got.equal(forked) {
		t.Fatal("fork rewind not exact")
	}
}

func TestForkErrors(t *testing.T) {
	manager := newTestManager(t, machines.Program{})
	ctx := t.Context()
	if err := manager.Fork(ctx, ""); !errors.Is(err, faults.Name) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Fork(ctx, MainLabel); !errors.Is(err, faults.ErrDuplicateName) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Switch("nope"); !errors.Is(err, faults.ErrUnknownTimeline) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Merge(ctx, Latest, MainLabel); !errors.Is(err, ErrSelfMerge) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Merge(ctx, Latest, "nope"); !errors.Is(err, faults.ErrUnknownTimeline) {
		t.Fatalf("got %v", err)
	}
}

func TestMergeLatest(t *testing.T) {
	manager := newTestManager(t, machines.Program{})
	ctx := t.Context()
	if err := manager.Fork(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	setRegister(t, manager, 0, 1)
	if err := manager.Switch("b"); err != nil {
		t.Fatal(err)
	}
	setRegister(t, manager, 0, 2)
	if err := manager.Switch(MainLabel); err != nil {
		t.Fatal(err)
	}

	if err := manager.Merge(ctx, Latest, "b"); err != nil {
		t.Fatal(err)
	}
	if r := manager.State().Registers; r[0] != 1 {
		t.Fatalf("got %v", r)
	}
	if labels := manager.Labels(); !slices.Equal(labels, []string{MainLabel}) {
		t.Fatalf("got %v", labels)
	}
	if labels := manager.Discarded(); !slices.Equal(labels, []string{"b"}) {
		t.Fatalf("got %v", labels)
	}
	info, err := manager.Inspect("b")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Discarded || info.State.Registers[0] != 2 || len(info.Trail) == 0 {
		t.Fatalf("got %+v", info)
	}
	if err := manager.Switch("b"); !errors.Is(err, faults.ErrUnknownTimeline) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Free(MainLabel); !errors.Is(err, ErrLive) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Free("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Inspect("b"); !errors.Is(err, faults.Name) {
		t.Fatalf("got %v", err)
	}
}

func TestMergeEarliest(t *testing.T) {
	manager := newTestManager(t, machines.Program{})
	ctx := t.Context()
	if err := manager.Fork(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	setRegister(t, manager, 0, 1)
	if err := manager.Merge(ctx, Earliest, "b"); err != nil {
		t.Fatal(err)
	}
	if manager.Current() != "b" {
		t.Fatalf("got %s", manager.Current())
	}
	if r := manager.State().Registers; r[0] != 0 {
		t.Fatalf("got %v", r)
	}
	if labels := manager.Discarded(); !slices.Equal(labels, []string{MainLabel}) {
		t.Fatalf("got %v", labels)
	}
	info, err := manager.Inspect(MainLabel)
	if err != nil {
		t.Fatal(err)
	}
	if info.State.Registers[0] != 1 || info.Current {
		t.Fatalf("got %+v", info)
	}
}

func TestManualMerge(t *testing.T) {
	manager := newTestManager(t, testProgram)
	ctx := t.Context()
	if err := manager.Resolve(ctx, Latest); !errors.Is(err, ErrNotMerging) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Fork(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if err := manager.Merge(ctx, Manual, "b"); err != nil {
		t.Fatal(err)
	}
	if manager.Status() != Merging {
		t.Fatalf("got %v", manager.Status())
	}
	if _, err := manager.Step(); !errors.Is(err, ErrMerging) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Checkpoint("c"); !errors.Is(err, ErrMerging) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Fork(ctx, "c"); !errors.Is(err, ErrMerging) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Resolve(ctx, Manual); !errors.Is(err, ErrBadStrategy) {
		t.Fatalf("got %v", err)
	}
	if err := manager.Resolve(ctx, Earliest); err != nil {
		t.Fatal(err)
	}
	if manager.Status() != Running || manager.Current() != "b" {
		t.Fatalf("got %v %s", manager.Status(), manager.Current())
	}
	if _, err := manager.Step(); err != nil {
		t.Fatal(err)
	}
}

func TestRunParallel(t *testing.T) {
	manager := newTestManager(t, testProgram)
	ctx := t.Context()
	for _, label := range []string{"b", "c", "d"} {
		if err := manager.Fork(ctx, label); err != nil {
			t.Fatal(err)
		}
	}
	labels := manager.Labels()
	if err := manager.RunParallel(ctx, labels, 2); err != nil {
		t.Fatal(err)
	}
	for _, label := range labels {
		info, err := manager.Inspect(label)
		if err != nil {
			t.Fatal(err)
		}
		if !info.State.Halted || info.State.Registers[3] != 6 {
			t.Fatalf("%s: got %v", label, info.State)
		}
	}
	if err := manager.RunParallel(ctx, []string{"b", "b"}, 1); !errors.Is(err, ErrDuplicateRun) {
		t.Fatalf("got %v", err)
	}
}

func TestRunParallelCancelled(t *testing.T) {
	manager := newTestManager(t, testProgram)
	if err := manager.Fork(t.Context(), "b"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := manager.RunParallel(ctx, manager.Labels(), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	for _, label := range manager.Labels() {
		info, err := manager.Inspect(label)
		if err != nil {
			t.Fatal(err)
		}
		if info.State.Halted {
			t.Fatalf("%s should not have run", label)
		}
	}
}
