package segments

import "fmt"

type Type uint8

const (
	Code Type = iota + 1
	Stack
	Heap
	Data
	Log
)

var typeNames = map[Type]string{
	Code:  "code",
	Stack: "stack",
	Heap:  "heap",
	Data:  "data",
	Log:   "log",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType maps a type name to its tag.
func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Index is reserved metadata for lookup structures laid out inside a segment.
type Index struct {
	Name string
	Root int64
}

// Segment is the half-open tape range [Start, Start+Size).
type Segment struct {
	Name    string
	Start   int64
	Size    int64
	Type    Type
	Indices []Index
}

func (s Segment) End() int64 {
	return s.Start + s.Size
}

func (s Segment) Contains(pos int64) bool {
	return pos >= s.Start && pos < s.End()
}

func (s Segment) String() string {
	return fmt.Sprintf("%s(%v)[%d,%d)", s.Name, s.Type, s.Start, s.End())
}
