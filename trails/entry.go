package trails

import (
	"bytes"
	"fmt"
)

type Kind uint8

const (
	KindWrite Kind = iota + 1
	KindSeek
	KindMark
	KindSegmentCreate
	KindSegmentWrite
	KindRegister
	KindStep
	KindMerge
)

var kindNames = [...]string{
	KindWrite:         "write",
	KindSeek:          "seek",
	KindMark:          "mark",
	KindSegmentCreate: "segment-create",
	KindSegmentWrite:  "segment-write",
	KindRegister:      "register",
	KindStep:          "step",
	KindMerge:         "merge",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entry is one undo record. Which fields are meaningful depends on Kind:
//
//	KindWrite          Pos, Old, New
//	KindSeek           OldPos (previous head), Pos (new head)
//	KindMark           Name, Pos, OldPos and HadOld (previous binding)
//	KindSegmentCreate  Name, Pos (start), Size, SegmentType
//	KindSegmentWrite   Name, Offset, Pos (absolute), Old, New
//	KindRegister       Reg, OldValue, NewValue
//	KindStep           IP, SP, FP, Flags before the instruction ran
//	KindMerge          Name (the merged timeline)
//
// Entries are never mutated once recorded.
type Entry struct {
	Seq  uint64
	Kind Kind

	Pos    int64
	OldPos int64
	Old    []byte
	New    []byte

	Name        string
	Offset      int64
	Size        int64
	SegmentType uint8
	HadOld      bool

	Reg      int
	OldValue int64
	NewValue int64

	IP    int64
	SP    int64
	FP    int64
	Flags uint8
}

// Span returns the absolute tape range whose bytes the entry changed.
func (e Entry) Span() (start int64, length int, ok bool) {
	switch e.Kind {
	case KindWrite, KindSegmentWrite:
		return e.Pos, len(e.New), true
	}
	return 0, 0, false
}

// Equal reports whether two entries record the same mutation under the same
// sequence number.
func (e Entry) Equal(o Entry) bool {
	return e.Seq == o.Seq &&
		e.Kind == o.Kind &&
		e.Pos == o.Pos &&
		e.OldPos == o.OldPos &&
		bytes.Equal(e.Old, o.Old) &&
		bytes.Equal(e.New, o.New) &&
		e.Name == o.Name &&
		e.Offset == o.Offset &&
		e.Size == o.Size &&
		e.SegmentType == o.SegmentType &&
		e.HadOld == o.HadOld &&
		e.Reg == o.Reg &&
		e.OldValue == o.OldValue &&
		e.NewValue == o.NewValue &&
		e.IP == o.IP &&
		e.SP == o.SP &&
		e.FP == o.FP &&
		e.Flags == o.Flags
}

func (e Entry) clone() Entry {
	e.Old = bytes.Clone(e.Old)
	e.New = bytes.Clone(e.New)
	return e
}

func (e Entry) String() string {
	switch e.Kind {
	case KindWrite:
		return fmt.Sprintf("#%d write @%d %x -> %x", e.Seq, e.Pos, e.Old, e.New)
	case KindSeek:
		return fmt.Sprintf("#%d seek %d -> %d", e.Seq, e.OldPos, e.Pos)
	case KindMark:
		return fmt.Sprintf("#%d mark %s @%d", e.Seq, e.Name, e.Pos)
	case KindSegmentCreate:
		return fmt.Sprintf("#%d segment-create %s [%d,+%d)", e.Seq, e.Name, e.Pos, e.Size)
	case KindSegmentWrite:
		return fmt.Sprintf("#%d segment-write %s+%d %x -> %x", e.Seq, e.Name, e.Offset, e.Old, e.New)
	case KindRegister:
		return fmt.Sprintf("#%d register r%d %d -> %d", e.Seq, e.Reg, e.OldValue, e.NewValue)
	case KindStep:
		return fmt.Sprintf("#%d step ip=%d sp=%d fp=%d flags=%04b", e.Seq, e.IP, e.SP, e.FP, e.Flags)
	case KindMerge:
		return fmt.Sprintf("#%d merge %s", e.Seq, e.Name)
	}
	return fmt.Sprintf("#%d %v", e.Seq, e.Kind)
}
