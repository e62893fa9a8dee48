// Package sqlitestore implements docstore.Adapter on top of
// modernc.org/sqlite. Documents are stored as JSON blobs keyed by
// (collection, id); CompareAndSet reads, checks and updates a document
// inside one database transaction, and a failed commit is reported as
// errclass.ErrBusyTryLater.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/jvs-project/taleforge/pkg/errclass"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	doc        TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
`

type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite-backed metadata store at dbPath.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	escapedPath := strings.ReplaceAll(dbPath, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escapedPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, collection, id string, out any) error {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return errclass.ErrNotFound.WithMessagef("%s/%s not found", collection, id)
	}
	if err != nil {
		return errclass.ErrStorageError.WithMessagef("load %s/%s: %v", collection, id, err)
	}
	return json.Unmarshal([]byte(raw), out)
}

func (s *Store) Find(ctx context.Context, collection string, filter map[string]any, out any) error {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return errclass.ErrStorageError.WithMessagef("find in %s: %v", collection, err)
	}
	defer rows.Close()

	var matches []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return errclass.ErrStorageError.WithMessagef("scan %s: %v", collection, err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		if matchesFilter(doc, filter) {
			matches = append(matches, json.RawMessage(raw))
		}
	}
	if err := rows.Err(); err != nil {
		return errclass.ErrStorageError.WithMessagef("iterate %s: %v", collection, err)
	}

	buf, err := json.Marshal(matches)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

func (s *Store) Save(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES (?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET doc = excluded.doc`,
		collection, id, string(raw),
	)
	if err != nil {
		return errclass.ErrStorageError.WithMessagef("save %s/%s: %v", collection, id, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return errclass.ErrStorageError.WithMessagef("remove %s/%s: %v", collection, id, err)
	}
	return nil
}

func (s *Store) CompareAndSet(ctx context.Context, collection, id string, predicate map[string]any, mutate func(map[string]any) (map[string]any, error)) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errclass.ErrStorageError.WithMessagef("begin tx: %v", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, errclass.ErrNotFound.WithMessagef("%s/%s not found", collection, id)
	}
	if err != nil {
		return false, errclass.ErrStorageError.WithMessagef("load %s/%s: %v", collection, id, err)
	}

	var current map[string]any
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return false, errclass.ErrStorageError.WithMessagef("decode %s/%s: %v", collection, id, err)
	}

	if !matchesFilter(current, predicate) {
		return false, nil
	}

	next, err := mutate(current)
	if err != nil {
		return false, err
	}

	nextRaw, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET doc = ? WHERE collection = ? AND id = ?`,
		string(nextRaw), collection, id,
	); err != nil {
		return false, errclass.ErrStorageError.WithMessagef("update %s/%s: %v", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, errclass.ErrBusyTryLater.WithMessagef("commit %s/%s: %v", collection, id, err)
	}
	return true, nil
}

func matchesFilter(doc map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || got != want {
			if f, fok := got.(float64); fok {
				if wi, wok := toFloat(want); wok && f == wi {
					continue
				}
			}
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
