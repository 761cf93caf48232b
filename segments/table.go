// Package segments carves named, typed, bounds-checked regions out of tape
// address space. Creation and writes are recorded in the tape's trail.
package segments

import (
	"cmp"
	"math"
	"slices"

	"github.com/reusee/revtape/faults"
	"github.com/reusee/revtape/tapes"
	"github.com/reusee/revtape/trails"
	"github.com/samber/lo"
)

type Table struct {
	tape     *tapes.Tape
	segments map[string]*Segment
}

func New(tape *tapes.Tape) *Table {
	return &Table{
		tape:     tape,
		segments: make(map[string]*Segment),
	}
}

// Rebuild replays the segment creations recorded in the tape's trail.
func Rebuild(tape *tapes.Tape) *Table {
	t := New(tape)
	for _, e := range tape.Trail().Entries() {
		if e.Kind == trails.KindSegmentCreate {
			t.segments[e.Name] = &Segment{
				Name:  e.Name,
				Start: e.Pos,
				Size:  e.Size,
				Type:  Type(e.SegmentType),
			}
		}
	}
	return t
}

func (t *Table) Tape() *tapes.Tape {
	return t.tape
}

// Create allocates size bytes first-fit over the gaps between live segments,
// starting at position 0.
func (t *Table) Create(name string, size int64, typ Type) (int64, error) {
	if _, ok := t.segments[name]; ok {
		return 0, faults.Namef(faults.ErrDuplicateName, "segment %q", name)
	}
	if size <= 0 {
		return 0, faults.Boundsf(faults.ErrOutOfBounds, "segment %q size %d", name, size)
	}
	start := t.findGap(size)
	if size > math.MaxInt64-start {
		return 0, faults.Boundsf(faults.ErrOutOfBounds, "segment %q size %d at %d exceeds address space", name, size, start)
	}
	t.tape.Trail().Record(trails.Entry{
		Kind:        trails.KindSegmentCreate,
		Name:        name,
		Pos:         start,
		Size:        size,
		SegmentType: uint8(typ),
	})
	t.segments[name] = &Segment{
		Name:  name,
		Start: start,
		Size:  size,
		Type:  typ,
	}
	return start, nil
}

func (t *Table) findGap(size int64) int64 {
	var cursor int64
	for _, seg := range t.All() {
		if seg.Start-cursor >= size {
			return cursor
		}
		cursor = max(cursor, seg.End())
	}
	return cursor
}

func (t *Table) Get(name string) (Segment, error) {
	seg, ok := t.segments[name]
	if !ok {
		return Segment{}, faults.Namef(faults.ErrUnknownSegment, "%q", name)
	}
	return *seg, nil
}

// All returns the live segments ordered by start.
func (t *Table) All() []Segment {
	ret := lo.Map(lo.Values(t.segments), func(seg *Segment, _ int) Segment {
		return *seg
	})
	slices.SortFunc(ret, func(a, b Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return ret
}

func (t *Table) check(name string, offset int64, length int) (*Segment, error) {
	seg, ok := t.segments[name]
	if !ok {
		return nil, faults.Namef(faults.ErrUnknownSegment, "%q", name)
	}
	if offset < 0 || length < 0 || offset > seg.Size || int64(length) > seg.Size-offset {
		return nil, faults.Boundsf(faults.ErrOutOfBounds,
			"segment %q offset %d length %d size %d", name, offset, length, seg.Size)
	}
	return seg, nil
}

func (t *Table) Read(name string, offset int64, length int) ([]byte, error) {
	seg, err := t.check(name, offset, length)
	if err != nil {
		return nil, err
	}
	return t.tape.Read(seg.Start+offset, length), nil
}

// Write validates the whole range before touching anything, so a rejected
// write leaves no partial mutation.
func (t *Table) Write(name string, offset int64, data []byte) error {
	seg, err := t.check(name, offset, len(data))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	pos := seg.Start + offset
	t.tape.Trail().Record(trails.Entry{
		Kind:   trails.KindSegmentWrite,
		Name:   name,
		Offset: offset,
		Pos:    pos,
		Old:    t.tape.Read(pos, len(data)),
		New:    append([]byte(nil), data...),
	})
	t.tape.WriteRaw(pos, data)
	return nil
}

// Seek moves the tape head to offset inside the segment. offset may equal the
// size, positioning the head just past the last byte.
func (t *Table) Seek(name string, offset int64) error {
	seg, err := t.check(name, offset, 0)
	if err != nil {
		return err
	}
	t.tape.Seek(seg.Start + offset)
	return nil
}

// Resolve maps a tape position to the segment containing it.
func (t *Table) Resolve(pos int64) (Segment, bool) {
	for _, seg := range t.segments {
		if seg.Contains(pos) {
			return *seg, true
		}
	}
	return Segment{}, false
}

// Undo inverts an entry of a kind the table owns. Undoing a creation removes
// the name; the bytes stay on the tape.
func (t *Table) Undo(e trails.Entry) (bool, error) {
	switch e.Kind {
	case trails.KindSegmentCreate:
		delete(t.segments, e.Name)
	case trails.KindSegmentWrite:
		if _, ok := t.segments[e.Name]; !ok {
			return true, faults.Namef(faults.ErrUnknownSegment, "undo write into %q", e.Name)
		}
		t.tape.WriteRaw(e.Pos, e.Old)
	default:
		return false, nil
	}
	return true, nil
}

// Clone copies the table onto tape, which must be a clone of t's tape.
func (t *Table) Clone(tape *tapes.Tape) *Table {
	ret := New(tape)
	for name, seg := range t.segments {
		cp := *seg
		cp.Indices = slices.Clone(seg.Indices)
		ret.segments[name] = &cp
	}
	return ret
}
