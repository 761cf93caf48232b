package timelines

import (
	"context"

	"github.com/reusee/revtape/logs"
	"github.com/reusee/revtape/storages"
	"go.opentelemetry.io/otel/attribute"
)

// SaveSnapshot stores the encoded manager under name and returns the
// snapshot id.
func (m *Manager) SaveSnapshot(ctx context.Context, store *storages.Snapshots, name string) (id string, err error) {
	ctx, done := m.start(ctx, "save_snapshot", attribute.String("name", name))
	defer done(&err)
	data, err := m.Encode()
	if err != nil {
		return "", err
	}
	id, err = store.Put(ctx, name, data)
	if err != nil {
		return "", err
	}
	m.logger.InfoContext(ctx, "snapshot saved", "name", name, "id", id, "bytes", len(data))
	return id, nil
}

// LoadSnapshot restores the manager stored as id. An empty id with a non-empty
// name loads the newest snapshot called name.
func LoadSnapshot(ctx context.Context, store *storages.Snapshots, id string, name string, logger logs.Logger) (*Manager, error) {
	var data []byte
	var err error
	if id == "" {
		id, data, err = store.Latest(ctx, name)
	} else {
		data, err = store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	m, err := Decode(data, logger)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "snapshot loaded", "id", id)
	return m, nil
}
