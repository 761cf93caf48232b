package timelines

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/reusee/revtape/faults"
	"github.com/reusee/revtape/trails"
	"go.opentelemetry.io/otel/attribute"
)

type Strategy uint8

const (
	// Latest keeps the current timeline and discards the other.
	Latest Strategy = iota + 1
	// Earliest adopts the other timeline and discards the current one.
	Earliest
	// Combine merges diverged tape bytes of the other timeline into the current one.
	Combine
	// Manual holds the manager until Resolve picks one of the other strategies.
	Manual
)

func (s Strategy) String() string {
	switch s {
	case Latest:
		return "latest"
	case Earliest:
		return "earliest"
	case Combine:
		return "combine"
	case Manual:
		return "manual"
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

func ParseStrategy(name string) (Strategy, bool) {
	for s := Latest; s <= Manual; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// Resolver picks the byte at pos when both timelines changed it differently.
type Resolver func(pos int64, current, other byte) (byte, error)

// Region is a half open tape range.
type Region struct {
	Start  int64
	Length int64
}

func (r Region) Contains(pos int64) bool {
	return pos >= r.Start && pos < r.Start+r.Length
}

type mergeOptions struct {
	region   *Region
	resolver Resolver
}

type MergeOption func(*mergeOptions)

// WithRegion limits Combine to [start, start+length). Without it every
// position written on either side since the fork is considered.
func WithRegion(start, length int64) MergeOption {
	return func(o *mergeOptions) {
		o.region = &Region{
			Start:  start,
			Length: length,
		}
	}
}

func WithResolver(resolver Resolver) MergeOption {
	return func(o *mergeOptions) {
		o.resolver = resolver
	}
}

// Merge reconciles the live timeline label with the current one. Discarded
// timelines stay inspectable until freed.
//
// Only a Combine merge that wrote bytes is recorded on the trail; undoing it
// with StepBack or Rewind makes label live again. Latest and Earliest change
// no machine state and are not undone.
func (m *Manager) Merge(ctx context.Context, strategy Strategy, label string, opts ...MergeOption) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, done := m.start(ctx, "merge",
		attribute.String("strategy", strategy.String()),
		attribute.String("label", label),
	)
	defer done(&err)

	if err := m.running(); err != nil {
		return err
	}
	other, err := m.live(label)
	if err != nil {
		return err
	}
	if label == m.current {
		return fmt.Errorf("%w: %s", ErrSelfMerge, label)
	}

	if strategy == Manual {
		m.status = Merging
		m.pending = label
		m.logger.InfoContext(ctx, "merge pending",
			"current", m.current,
			"label", label,
		)
		return nil
	}

	m.status = Merging
	defer func() {
		m.status = Running
	}()
	return m.merge(ctx, strategy, other, opts)
}

// Resolve completes a pending Manual merge with a concrete strategy. On error
// the merge stays pending.
func (m *Manager) Resolve(ctx context.Context, strategy Strategy, opts ...MergeOption) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, done := m.start(ctx, "resolve",
		attribute.String("strategy", strategy.String()),
		attribute.String("label", m.pending),
	)
	defer done(&err)

	if m.status != Merging {
		return ErrNotMerging
	}
	if strategy == Manual {
		return fmt.Errorf("%w: %v", ErrBadStrategy, strategy)
	}
	other, err := m.live(m.pending)
	if err != nil {
		return err
	}
	if err := m.merge(ctx, strategy, other, opts); err != nil {
		return err
	}
	m.status = Running
	m.pending = ""
	return nil
}

func (m *Manager) merge(ctx context.Context, strategy Strategy, other *Timeline, opts []MergeOption) error {
	var options mergeOptions
	for _, opt := range opts {
		opt(&options)
	}
	current := m.cur()

	switch strategy {

	case Latest:
		other.discarded = true

	case Earliest:
		current.discarded = true
		m.current = other.label

	case Combine:
		n, err := combine(current, other, options)
		if err != nil {
			return err
		}
		other.discarded = true
		m.logger.InfoContext(ctx, "combined",
			"current", current.label,
			"other", other.label,
			"bytes", n,
		)

	default:
		return fmt.Errorf("%w: %v", ErrBadStrategy, strategy)
	}

	discarded := other.label
	if strategy == Earliest {
		discarded = current.label
	}
	m.updateGauge()
	m.logger.InfoContext(ctx, "merge",
		"strategy", strategy,
		"current", m.current,
		"discarded", discarded,
	)
	return nil
}

// ConflictError lists positions a Combine merge could not order. It matches
// faults.MergeConflict and leaves both timelines untouched.
type ConflictError struct {
	Label     string
	Positions []int64
}

func (e *ConflictError) Error() string {
	shown := e.Positions
	if len(shown) > 8 {
		shown = shown[:8]
	}
	return fmt.Sprintf("%v: %s: %d positions %v", faults.MergeConflict, e.Label, len(e.Positions), shown)
}

func (e *ConflictError) Is(target error) bool {
	return target == faults.MergeConflict
}

// commonPrefix is the number of leading entries both trails share. Forks copy
// the trail, so this is the fork point unless either side stepped back below it.
func commonPrefix(a, b *trails.Trail) int {
	n := min(a.Len(), b.Len())
	for i := range n {
		if !a.At(i).Equal(b.At(i)) {
			return i
		}
	}
	return n
}

type touch struct {
	base    byte
	lastSeq uint64
}

// touches maps every position written by entries to the byte it held before
// the first of them and the sequence number of the last.
func touches(entries []trails.Entry, region *Region) map[int64]touch {
	ret := make(map[int64]touch)
	for _, e := range entries {
		start, length, ok := e.Span()
		if !ok {
			continue
		}
		for i := range length {
			pos := start + int64(i)
			if region != nil && !region.Contains(pos) {
				continue
			}
			t, seen := ret[pos]
			if !seen {
				t.base = e.Old[i]
			}
			t.lastSeq = e.Seq
			ret[pos] = t
		}
	}
	return ret
}

// combine applies the three way byte merge and returns how many bytes of the
// current timeline changed.
func combine(current, other *Timeline, options mergeOptions) (int, error) {
	curMachine, otherMachine := current.machine, other.machine
	prefix := commonPrefix(curMachine.Trail(), otherMachine.Trail())
	curTouches := touches(curMachine.Trail().Since(curMachine.Trail().TokenAt(prefix)), options.region)
	otherTouches := touches(otherMachine.Trail().Since(otherMachine.Trail().TokenAt(prefix)), options.region)

	positions := slices.Collect(maps.Keys(curTouches))
	for pos := range otherTouches {
		if _, ok := curTouches[pos]; !ok {
			positions = append(positions, pos)
		}
	}
	slices.Sort(positions)

	merged := make(map[int64]byte)
	var conflicts []int64
	for _, pos := range positions {
		cur := curMachine.Tape().Read(pos, 1)[0]
		oth := otherMachine.Tape().Read(pos, 1)[0]
		if cur == oth {
			continue
		}
		ct, inCur := curTouches[pos]
		ot, inOther := otherTouches[pos]
		base := ct.base
		if !inCur {
			base = ot.base
		}

		switch {
		case cur == base:
			merged[pos] = oth
		case oth == base:
		case options.resolver != nil:
			b, err := options.resolver(pos, cur, oth)
			if err != nil {
				return 0, fmt.Errorf("resolve %d: %w", pos, err)
			}
			if b != cur {
				merged[pos] = b
			}
		case inCur && inOther && ot.lastSeq > ct.lastSeq:
			merged[pos] = oth
		case inCur && inOther && ot.lastSeq < ct.lastSeq:
		default:
			conflicts = append(conflicts, pos)
		}
	}

	if len(conflicts) > 0 {
		mergeConflictsTotal.Add(float64(len(conflicts)))
		return 0, &ConflictError{
			Label:     other.label,
			Positions: conflicts,
		}
	}
	if len(merged) == 0 {
		return 0, nil
	}

	tape := curMachine.Tape()
	tape.Trail().Record(trails.Entry{
		Kind: trails.KindMerge,
		Name: other.label,
	})
	keys := slices.Sorted(maps.Keys(merged))
	for i := 0; i < len(keys); {
		j := i + 1
		for j < len(keys) && keys[j] == keys[j-1]+1 {
			j++
		}
		run := make([]byte, 0, j-i)
		for _, pos := range keys[i:j] {
			run = append(run, merged[pos])
		}
		tape.Write(keys[i], run)
		i = j
	}
	return len(merged), nil
}
