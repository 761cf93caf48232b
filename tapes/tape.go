// Package tapes implements the logically infinite, bidirectionally addressed
// byte tape. Every mutation is recorded in the tape's trail before it is
// applied.
package tapes

import (
	"maps"

	"github.com/reusee/revtape/faults"
	"github.com/reusee/revtape/trails"
)

type Tape struct {
	store Store
	trail *trails.Trail
	head  int64
	marks map[string]int64
}

// New creates a tape over store, recording into trail. Nil arguments get an
// in-memory store and an empty trail.
func New(store Store, trail *trails.Trail) *Tape {
	if store == nil {
		store = NewMemoryStore()
	}
	if trail == nil {
		trail = trails.New()
	}
	return &Tape{
		store: store,
		trail: trail,
		marks: make(map[string]int64),
	}
}

// Rebuild creates a tape whose head and marks are replayed from trail. The
// store is expected to already hold the bytes the trail describes.
func Rebuild(store Store, trail *trails.Trail) *Tape {
	t := New(store, trail)
	for _, e := range trail.Entries() {
		switch e.Kind {
		case trails.KindSeek:
			t.head = e.Pos
		case trails.KindMark:
			t.marks[e.Name] = e.Pos
		}
	}
	return t
}

func (t *Tape) Trail() *trails.Trail {
	return t.trail
}

func (t *Tape) Store() Store {
	return t.store
}

func (t *Tape) Head() int64 {
	return t.head
}

// Read never fails; unwritten positions read as zero.
func (t *Tape) Read(pos int64, n int) []byte {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	t.store.ReadAt(pos, buf)
	return buf
}

func (t *Tape) ReadHead(n int) []byte {
	return t.Read(t.head, n)
}

// Write records the overwritten bytes, then stores data at pos. The head does
// not move.
func (t *Tape) Write(pos int64, data []byte) {
	if len(data) == 0 {
		return
	}
	t.trail.Record(trails.Entry{
		Kind: trails.KindWrite,
		Pos:  pos,
		Old:  t.Read(pos, len(data)),
		New:  append([]byte(nil), data...),
	})
	t.store.WriteAt(pos, data)
}

func (t *Tape) WriteHead(data []byte) {
	t.Write(t.head, data)
}

// WriteRaw stores data without recording. It exists for applying undo
// records and for components that record their own entry kinds.
func (t *Tape) WriteRaw(pos int64, data []byte) {
	t.store.WriteAt(pos, data)
}

func (t *Tape) Seek(pos int64) {
	t.trail.Record(trails.Entry{
		Kind:   trails.KindSeek,
		OldPos: t.head,
		Pos:    pos,
	})
	t.head = pos
}

func (t *Tape) Advance(delta int64) {
	t.Seek(t.head + delta)
}

// Mark binds name to the current head position.
func (t *Tape) Mark(name string) {
	old, had := t.marks[name]
	t.trail.Record(trails.Entry{
		Kind:   trails.KindMark,
		Name:   name,
		Pos:    t.head,
		OldPos: old,
		HadOld: had,
	})
	t.marks[name] = t.head
}

func (t *Tape) MarkPos(name string) (int64, bool) {
	pos, ok := t.marks[name]
	return pos, ok
}

func (t *Tape) SeekMark(name string) error {
	pos, ok := t.marks[name]
	if !ok {
		return faults.Namef(faults.ErrUnknownMark, "%q", name)
	}
	t.Seek(pos)
	return nil
}

func (t *Tape) Marks() map[string]int64 {
	return maps.Clone(t.marks)
}

// Undo inverts an entry of a kind the tape owns. It reports false for kinds
// owned by other components.
func (t *Tape) Undo(e trails.Entry) bool {
	switch e.Kind {
	case trails.KindWrite:
		t.store.WriteAt(e.Pos, e.Old)
	case trails.KindSeek:
		t.head = e.OldPos
	case trails.KindMark:
		if e.HadOld {
			t.marks[e.Name] = e.OldPos
		} else {
			delete(t.marks, e.Name)
		}
	default:
		return false
	}
	return true
}

// Clone returns a tape sharing nothing with t.
func (t *Tape) Clone() *Tape {
	return &Tape{
		store: t.store.Clone(),
		trail: t.trail.Clone(),
		head:  t.head,
		marks: maps.Clone(t.marks),
	}
}
