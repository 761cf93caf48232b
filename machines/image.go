package machines

import (
	"bytes"
	"encoding/gob"
	"io"
	"slices"

	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/segments"
	"github.com/reusee/revtape/tapes"
	"github.com/reusee/revtape/trails"
)

// Page is one allocated run of tape bytes starting at Pos.
type Page struct {
	Pos  int64
	Data []byte
}

// Image is the persisted form of a machine. Segments, marks and the head are
// not stored; they are replayed from the trail.
type Image struct {
	Config Config
	Pages  []Page
	Trail  []trails.Entry
	Seq    uint64
	State  State
	// Fault is set when the machine was halted by a fault.
	Fault *FaultImage
}

var zeroPage = make([]byte, tapes.PageSize)

func (m *Machine) Image() *Image {
	img := &Image{
		Config: m.config,
		Seq:    m.Trail().Seq(),
		State:  m.State(),
	}
	if m.fault != nil {
		img.Fault = m.fault.image()
	}
	for pos, data := range m.tape.Store().Pages() {
		if bytes.Equal(data, zeroPage) {
			continue
		}
		img.Pages = append(img.Pages, Page{
			Pos:  pos,
			Data: slices.Clone(data),
		})
	}
	for _, e := range m.Trail().Entries() {
		img.Trail = append(img.Trail, e)
	}
	return img
}

func FromImage(img *Image, logger logs.Logger) (*Machine, error) {
	store := tapes.NewMemoryStore()
	for _, page := range img.Pages {
		store.WriteAt(page.Pos, page.Data)
	}
	tape := tapes.Rebuild(store, trails.Restore(img.Trail, img.Seq))
	config := img.Config.WithDefaults()
	if len(img.State.Registers) > 0 {
		config.Registers = len(img.State.Registers)
	}
	m, err := New(config, logger)
	if err != nil {
		return nil, err
	}
	m.tape = tape
	m.segments = segments.Rebuild(tape)
	if err := m.SetState(img.State); err != nil {
		return nil, err
	}
	if img.Fault != nil {
		m.fault = img.Fault.fault()
	}
	return m, nil
}

func (m *Machine) Save(w io.Writer) error {
	return gob.NewEncoder(w).Encode(m.Image())
}

func Restore(r io.Reader, logger logs.Logger) (*Machine, error) {
	var img Image
	if err := gob.NewDecoder(r).Decode(&img); err != nil {
		return nil, err
	}
	return FromImage(&img, logger)
}
