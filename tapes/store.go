package tapes

import (
	"iter"
	"maps"
	"slices"
)

const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// Store is where tape bytes physically live. Implementations must read gaps
// as zero and accept writes at any position, including negative ones.
type Store interface {
	ReadAt(pos int64, buf []byte)
	WriteAt(pos int64, data []byte)
	// Pages yields allocated pages in ascending order as (first position, bytes).
	Pages() iter.Seq2[int64, []byte]
	Clone() Store
}

// MemoryStore keeps pages in a map keyed by floor(pos / PageSize).
type MemoryStore struct {
	pages map[int64]*[PageSize]byte
}

var _ Store = new(MemoryStore)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages: make(map[int64]*[PageSize]byte),
	}
}

func split(pos int64) (page int64, offset int) {
	return pos >> PageShift, int(pos & (PageSize - 1))
}

func (m *MemoryStore) ReadAt(pos int64, buf []byte) {
	for len(buf) > 0 {
		page, offset := split(pos)
		n := min(PageSize-offset, len(buf))
		if p, ok := m.pages[page]; ok {
			copy(buf[:n], p[offset:offset+n])
		} else {
			clear(buf[:n])
		}
		buf = buf[n:]
		pos += int64(n)
	}
}

func (m *MemoryStore) WriteAt(pos int64, data []byte) {
	for len(data) > 0 {
		page, offset := split(pos)
		n := min(PageSize-offset, len(data))
		p, ok := m.pages[page]
		if !ok {
			p = new([PageSize]byte)
			m.pages[page] = p
		}
		copy(p[offset:offset+n], data[:n])
		data = data[n:]
		pos += int64(n)
	}
}

func (m *MemoryStore) Pages() iter.Seq2[int64, []byte] {
	return func(yield func(int64, []byte) bool) {
		for _, page := range slices.Sorted(maps.Keys(m.pages)) {
			if !yield(page<<PageShift, m.pages[page][:]) {
				return
			}
		}
	}
}

func (m *MemoryStore) Clone() Store {
	ret := NewMemoryStore()
	for page, p := range m.pages {
		cp := *p
		ret.pages[page] = &cp
	}
	return ret
}

// NumPages returns how many pages have been allocated.
func (m *MemoryStore) NumPages() int {
	return len(m.pages)
}
