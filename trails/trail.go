// Package trails implements the append-only undo log every reversible
// mutation is recorded in.
package trails

import (
	"errors"
	"fmt"
	"iter"
)

var ErrStaleToken = errors.New("trail token no longer matches history")

// Token is a position in a trail, as captured by Mark.
type Token struct {
	Name string
	Len  int
	Seq  uint64
}

// Trail does not know how to invert entries; RewindTo and UndoLast hand them
// back to the owner of the state they describe.
type Trail struct {
	entries []Entry
	seq     uint64
}

func New() *Trail {
	return &Trail{}
}

// Restore rebuilds a trail from persisted entries. seq is the last sequence
// number handed out, which may exceed the last entry's after pops.
func Restore(entries []Entry, seq uint64) *Trail {
	t := &Trail{
		entries: make([]Entry, 0, len(entries)),
		seq:     seq,
	}
	for _, e := range entries {
		t.entries = append(t.entries, e.clone())
		if e.Seq > t.seq {
			t.seq = e.Seq
		}
	}
	return t
}

// Record appends e and assigns its sequence number.
func (t *Trail) Record(e Entry) Entry {
	t.seq++
	e.Seq = t.seq
	t.entries = append(t.entries, e)
	recordedEntries.WithLabelValues(e.Kind.String()).Inc()
	return e
}

// UndoLast pops the most recent entry.
func (t *Trail) UndoLast() (Entry, bool) {
	n := len(t.entries)
	if n == 0 {
		return Entry{}, false
	}
	e := t.entries[n-1]
	t.entries[n-1] = Entry{}
	t.entries = t.entries[:n-1]
	undoneEntries.WithLabelValues(e.Kind.String()).Inc()
	return e, true
}

func (t *Trail) Last() (Entry, bool) {
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

func (t *Trail) Len() int {
	return len(t.entries)
}

func (t *Trail) At(i int) Entry {
	return t.entries[i]
}

// Seq returns the last sequence number handed out.
func (t *Trail) Seq() uint64 {
	return t.seq
}

func (t *Trail) Mark(name string) Token {
	token := Token{
		Name: name,
		Len:  len(t.entries),
	}
	if len(t.entries) > 0 {
		token.Seq = t.entries[len(t.entries)-1].Seq
	}
	return token
}

// TokenAt returns the token for the first n entries.
func (t *Trail) TokenAt(n int) Token {
	token := Token{
		Len: n,
	}
	if n > 0 && n <= len(t.entries) {
		token.Seq = t.entries[n-1].Seq
	}
	return token
}

// Valid reports whether the history up to token is still the prefix of t.
func (t *Trail) Valid(token Token) bool {
	if token.Len > len(t.entries) {
		return false
	}
	if token.Len == 0 {
		return true
	}
	return t.entries[token.Len-1].Seq == token.Seq
}

// RewindTo pops every entry recorded after token, newest first, passing each
// to undo.
func (t *Trail) RewindTo(token Token, undo func(Entry) error) error {
	if !t.Valid(token) {
		return fmt.Errorf("%w: %s", ErrStaleToken, token.Name)
	}
	for len(t.entries) > token.Len {
		e, _ := t.UndoLast()
		if err := undo(e); err != nil {
			return fmt.Errorf("undo %v: %w", e, err)
		}
	}
	return nil
}

func (t *Trail) Entries() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i, e := range t.entries {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Since returns a copy of the entries recorded after token.
func (t *Trail) Since(token Token) []Entry {
	if token.Len >= len(t.entries) {
		return nil
	}
	ret := make([]Entry, 0, len(t.entries)-token.Len)
	for _, e := range t.entries[token.Len:] {
		ret = append(ret, e.clone())
	}
	return ret
}

// Clone returns an independent deep copy.
func (t *Trail) Clone() *Trail {
	ret := &Trail{
		entries: make([]Entry, len(t.entries)),
		seq:     t.seq,
	}
	for i, e := range t.entries {
		ret.entries[i] = e.clone()
	}
	return ret
}
