package timelines

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/machines"
	"github.com/samber/lo"
)

// File is the persisted form of a manager: every timeline's image plus its
// checkpoints.
type File struct {
	Current   string
	Pending   string
	Timelines []TimelineImage
}

type TimelineImage struct {
	Label       string
	Discarded   bool
	Image       *machines.Image
	Checkpoints []Checkpoint
}

func (m *Manager) File() *File {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &File{
		Current: m.current,
		Pending: m.pending,
	}
	labels := lo.Keys(m.timelines)
	slices.Sort(labels)
	for _, label := range labels {
		tl := m.timelines[label]
		f.Timelines = append(f.Timelines, TimelineImage{
			Label:       label,
			Discarded:   tl.discarded,
			Image:       tl.machine.Image(),
			Checkpoints: slices.Clone(tl.checkpoints),
		})
	}
	return f
}

func FromFile(f *File, logger logs.Logger) (*Manager, error) {
	m := newManager(logger)
	for _, img := range f.Timelines {
		machine, err := machines.FromImage(img.Image, logger)
		if err != nil {
			return nil, fmt.Errorf("timeline %s: %w", img.Label, err)
		}
		m.timelines[img.Label] = &Timeline{
			label:       img.Label,
			machine:     machine,
			checkpoints: img.Checkpoints,
			discarded:   img.Discarded,
		}
	}
	if _, err := m.live(f.Current); err != nil {
		return nil, err
	}
	m.current = f.Current
	if f.Pending != "" {
		if _, err := m.live(f.Pending); err != nil {
			return nil, err
		}
		m.status = Merging
		m.pending = f.Pending
	}
	m.updateGauge()
	return m, nil
}

// SaveFile writes the manager to path atomically. A lock file next to it
// rejects concurrent writers. A crash between taking and releasing the lock
// leaves path+".lock" behind; saves fail with os.ErrExist until it is removed
// by hand.
func (m *Manager) SaveFile(path string) error {
	lockFile := path + ".lock"
	f, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s is held by another writer or left by a crash: %w", lockFile, err)
	} else if err != nil {
		return err
	}
	f.Close()
	defer os.Remove(lockFile)

	data, err := m.Encode()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	m.logger.Info("saved", "path", path, "bytes", len(data))
	return nil
}

func LoadFile(path string, logger logs.Logger) (*Manager, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Decode(content, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Encode returns the gob encoding of m's File.
func (m *Manager) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(m.File()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(data []byte, logger logs.Logger) (*Manager, error) {
	var f File
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return FromFile(&f, logger)
}
