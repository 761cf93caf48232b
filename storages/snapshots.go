// Package storages keeps encoded timeline snapshots in a SQLite database.
package storages

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_name ON snapshots(name, created_at);
`

// Snapshot describes a stored blob without its data.
type Snapshot struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Size      int
}

type Snapshots struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string) (_ *Snapshots, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, wrap(err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	// an in-memory database lives only as long as its connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, wrap(err)
	}
	return &Snapshots{
		db: db,
	}, nil
}

func (s *Snapshots) Close() error {
	return s.db.Close()
}

// Update runs fn in a transaction, committing if fn returns nil.
func (s *Snapshots) Update(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	t := sqlTx{tx: tx}
	defer func() {
		if err != nil {
			t.Rollback()
		}
	}()
	if err := fn(t); err != nil {
		return err
	}
	if err := t.Commit(); err != nil {
		return wrap(err)
	}
	return nil
}

// Put stores data under name and returns the new snapshot's id. Names are
// not unique; Latest picks the newest.
func (s *Snapshots) Put(ctx context.Context, name string, data []byte) (id string, err error) {
	id = uuid.New().String()
	err = s.Update(ctx, func(tx Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO snapshots (id, name, created_at, data) VALUES (?, ?, ?, ?)`,
			id, name, time.Now().UnixNano(), data,
		)
		if err != nil {
			return wrap(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Snapshots) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, wrap(err)
	}
	return data, nil
}

// Latest returns the id and data of the newest snapshot called name.
func (s *Snapshots) Latest(ctx context.Context, name string) (string, []byte, error) {
	var id string
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, data FROM snapshots WHERE name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, name,
	).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrSnapshotNotFound
	}
	if err != nil {
		return "", nil, wrap(err)
	}
	return id, data, nil
}

// List returns every snapshot, oldest first.
func (s *Snapshots) List(ctx context.Context) (ret []Snapshot, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, length(data) FROM snapshots ORDER BY created_at, rowid`,
	)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var snapshot Snapshot
		var nanos int64
		if err := rows.Scan(&snapshot.ID, &snapshot.Name, &nanos, &snapshot.Size); err != nil {
			return nil, wrap(err)
		}
		snapshot.CreatedAt = time.Unix(0, nanos)
		ret = append(ret, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return ret, nil
}

func (s *Snapshots) Delete(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx Tx) error {
		res, err := tx.Exec(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
		if err != nil {
			return wrap(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrap(err)
		}
		if n == 0 {
			return ErrSnapshotNotFound
		}
		return nil
	})
}
