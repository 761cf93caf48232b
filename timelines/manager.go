// Package timelines manages the checkpoints and sibling timelines of a
// machine: rewinding to named points, forking deep copies, and merging them
// back under a chosen strategy.
package timelines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/reusee/revtape/faults"
	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/machines"
	"github.com/reusee/revtape/syncs"
	"github.com/reusee/revtape/trails"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const MainLabel = "main"

type Status uint8

const (
	Running Status = iota + 1
	Rewinding
	Merging
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Rewinding:
		return "rewinding"
	case Merging:
		return "merging"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

var (
	ErrMerging      = errors.New("manual merge pending")
	ErrNotMerging   = errors.New("no manual merge pending")
	ErrLive         = errors.New("timeline is live")
	ErrSelfMerge    = errors.New("cannot merge a timeline into itself")
	ErrBadStrategy  = errors.New("bad merge strategy")
	ErrDuplicateRun = errors.New("timeline listed twice")
)

var tracer = otel.Tracer("revtape/timelines")

// Manager owns every timeline of one program. All entry points are serialised.
type Manager struct {
	mu        sync.Mutex
	logger    logs.Logger
	status    Status
	current   string
	pending   string
	timelines map[string]*Timeline
}

func newManager(logger logs.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:    logger,
		status:    Running,
		current:   MainLabel,
		timelines: make(map[string]*Timeline),
	}
}

// New starts a manager whose only timeline, MainLabel, runs machine.
func New(machine *machines.Machine, logger logs.Logger) *Manager {
	m := newManager(logger)
	m.timelines[MainLabel] = &Timeline{
		label:   MainLabel,
		machine: machine,
	}
	m.updateGauge()
	return m
}

func (m *Manager) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := tracer.Start(ctx, "timelines."+op, trace.WithAttributes(attrs...))
	begin := time.Now()
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		operationDuration.WithLabelValues(op).Observe(time.Since(begin).Seconds())
		observe(op, err)
	}
}

func (m *Manager) updateGauge() {
	liveTimelines.Set(float64(len(m.liveLabels())))
}

func (m *Manager) liveLabels() []string {
	labels := lo.Filter(lo.Keys(m.timelines), func(label string, _ int) bool {
		return !m.timelines[label].discarded
	})
	slices.Sort(labels)
	return labels
}

func (m *Manager) live(label string) (*Timeline, error) {
	tl, ok := m.timelines[label]
	if !ok || tl.discarded {
		return nil, faults.Namef(faults.ErrUnknownTimeline, "%q", label)
	}
	return tl, nil
}

func (m *Manager) running() error {
	if m.status == Merging {
		return fmt.Errorf("%w: %s", ErrMerging, m.pending)
	}
	return nil
}

func (m *Manager) cur() *Timeline {
	return m.timelines[m.current]
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Forked reports whether more than one timeline is live.
func (m *Manager) Forked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.liveLabels()) > 1
}

func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Labels returns the live timelines in sorted order.
func (m *Manager) Labels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLabels()
}

// Discarded returns timelines dropped by merges and not yet freed.
func (m *Manager) Discarded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	labels := lo.Filter(lo.Keys(m.timelines), func(label string, _ int) bool {
		return m.timelines[label].discarded
	})
	slices.Sort(labels)
	return labels
}

// Inspect works on live and discarded timelines alike.
func (m *Manager) Inspect(label string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.timelines[label]
	if !ok {
		return Info{}, faults.Namef(faults.ErrUnknownTimeline, "%q", label)
	}
	return tl.info(label == m.current), nil
}

// State is the register snapshot of the current timeline.
func (m *Manager) State() machines.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur().machine.State()
}

// With calls fn with the current timeline's machine under the manager lock.
func (m *Manager) With(fn func(*machines.Machine) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.cur().machine)
}

// Checkpoint names the current point of the current timeline, replacing a
// previous checkpoint of the same name.
func (m *Manager) Checkpoint(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.running(); err != nil {
		return err
	}
	tl := m.cur()
	if idx, ok := tl.checkpoint(name); ok {
		tl.checkpoints = slices.Delete(tl.checkpoints, idx, idx+1)
	}
	machine := tl.machine
	tl.checkpoints = append(tl.checkpoints, Checkpoint{
		Name:  name,
		Token: machine.Trail().Mark(name),
		State: machine.State(),
	})
	observe("checkpoint", nil)
	m.logger.Debug("checkpoint",
		"timeline", tl.label,
		"name", name,
		"trail", machine.Trail().Len(),
	)
	return nil
}

// Checkpoints lists the current timeline's checkpoints, oldest first.
func (m *Manager) Checkpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Map(m.cur().checkpoints, func(cp Checkpoint, _ int) string {
		return cp.Name
	})
}

// Rewind restores the current timeline to the named checkpoint. Checkpoints
// created after it are dropped.
func (m *Manager) Rewind(ctx context.Context, name string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, done := m.start(ctx, "rewind", attribute.String("checkpoint", name))
	defer done(&err)

	if err := m.running(); err != nil {
		return err
	}
	tl := m.cur()
	idx, ok := tl.checkpoint(name)
	if !ok {
		return faults.Namef(faults.ErrUnknownCheckpoint, "%q", name)
	}
	cp := tl.checkpoints[idx]

	m.status = Rewinding
	defer func() {
		m.status = Running
	}()
	popped := tl.machine.Trail().Since(cp.Token)
	if err := tl.machine.RewindTo(cp.Token, cp.State.Clone()); err != nil {
		return err
	}
	tl.checkpoints = tl.checkpoints[:idx+1]
	m.revive(ctx, popped)

	m.logger.InfoContext(ctx, "rewind",
		"timeline", tl.label,
		"checkpoint", name,
		"popped", len(popped),
	)
	return nil
}

// Fork deep copies the current timeline under label. The current timeline
// does not change.
func (m *Manager) Fork(ctx context.Context, label string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, done := m.start(ctx, "fork", attribute.String("label", label))
	defer done(&err)

	if err := m.running(); err != nil {
		return err
	}
	if label == "" {
		return faults.Namef(nil, "empty timeline label")
	}
	if _, ok := m.timelines[label]; ok {
		return faults.Namef(faults.ErrDuplicateName, "timeline %q", label)
	}
	m.timelines[label] = m.cur().clone(label)
	m.updateGauge()

	m.logger.InfoContext(ctx, "fork",
		"from", m.current,
		"label", label,
	)
	return nil
}

// Switch makes another live timeline current.
func (m *Manager) Switch(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.running(); err != nil {
		return err
	}
	if _, err := m.live(label); err != nil {
		return err
	}
	m.current = label
	observe("switch", nil)
	return nil
}

// Free deletes a discarded timeline and its history.
func (m *Manager) Free(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.timelines[label]
	if !ok {
		return faults.Namef(faults.ErrUnknownTimeline, "%q", label)
	}
	if !tl.discarded {
		return fmt.Errorf("%w: %s", ErrLive, label)
	}
	delete(m.timelines, label)
	observe("free", nil)
	m.logger.Debug("free", "label", label)
	return nil
}

func (m *Manager) Step() (*machines.Instruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.running(); err != nil {
		return nil, err
	}
	return m.cur().machine.Step()
}

// StepBack undoes the last instruction of the current timeline. Checkpoints
// taken after the restored point are dropped.
func (m *Manager) StepBack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.running(); err != nil {
		return err
	}
	tl := m.cur()
	trail := tl.machine.Trail()
	var last trails.Entry
	for i := trail.Len() - 1; i >= 0; i-- {
		if e := trail.At(i); e.Kind == trails.KindStep || e.Kind == trails.KindMerge {
			last = e
			break
		}
	}
	if err := tl.machine.StepBack(); err != nil {
		return err
	}
	tl.prune()
	m.revive(context.Background(), []trails.Entry{last})
	return nil
}

// revive makes live again the timelines whose combine merges were undone.
// A timeline freed since its merge stays gone.
func (m *Manager) revive(ctx context.Context, undone []trails.Entry) {
	for _, e := range undone {
		if e.Kind != trails.KindMerge {
			continue
		}
		tl, ok := m.timelines[e.Name]
		if !ok {
			m.logger.WarnContext(ctx, "merged timeline already freed", "label", e.Name)
			continue
		}
		if !tl.discarded {
			continue
		}
		tl.discarded = false
		m.logger.InfoContext(ctx, "revive", "label", e.Name)
	}
	m.updateGauge()
}

// Run advances the current timeline until it halts.
func (m *Manager) Run(ctx context.Context) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, done := m.start(ctx, "run", attribute.String("label", m.current))
	defer done(&err)
	if err := m.running(); err != nil {
		return err
	}
	return m.cur().machine.RunContext(ctx)
}

// RunParallel advances the listed live timelines concurrently, at most limit
// at a time. Timelines share no state, so each goroutine owns its machine.
func (m *Manager) RunParallel(ctx context.Context, labels []string, limit int) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, done := m.start(ctx, "run_parallel", attribute.Int("timelines", len(labels)))
	defer done(&err)

	if err := m.running(); err != nil {
		return err
	}
	if limit <= 0 {
		limit = len(labels)
	}
	tls := make([]*Timeline, 0, len(labels))
	for _, label := range labels {
		tl, err := m.live(label)
		if err != nil {
			return err
		}
		if slices.Contains(tls, tl) {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, label)
		}
		tls = append(tls, tl)
	}

	sem := syncs.NewSemaphore(max(limit, 1))
	errs := make([]error, len(tls))
	wg := new(sync.WaitGroup)
	for i, tl := range tls {
		if err := sem.Acquire(ctx); err != nil {
			errs[i] = fmt.Errorf("%s: %w", tl.label, err)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release()
			if err := tl.machine.RunContext(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", tl.label, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
