// Package docstore is a small JSON document store on top of SQLite. Documents
// live in named collections and are updated with shallow patches whose values
// may be field operators (ArrayUnion, ArrayRemove, Increment). A patch is
// applied inside a single transaction, so operator updates are atomic.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Update when the target document does not exist.
var ErrNotFound = errors.New("document not found")

// Store reads and writes documents.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Snapshot is the result of a read. Exists is false for missing documents.
type Snapshot struct {
	ID     string
	Exists bool
	raw    []byte
}

// DataTo decodes the document into v.
func (s *Snapshot) DataTo(v any) error {
	if !s.Exists {
		return fmt.Errorf("decode %s: %w", s.ID, ErrNotFound)
	}
	if err := json.Unmarshal(s.raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.ID, err)
	}
	return nil
}

// Data returns the raw field map.
func (s *Snapshot) Data() (map[string]any, error) {
	m := map[string]any{}
	if err := s.DataTo(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get reads one document. A missing document is not an error.
func (s *Store) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return &Snapshot{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &Snapshot{ID: id, Exists: true, raw: []byte(raw)}, nil
}

// List returns every document in a collection in insertion order.
func (s *Store) List(ctx context.Context, collection string) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY created_at, rowid`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		snaps = append(snaps, &Snapshot{ID: id, Exists: true, raw: []byte(raw)})
	}
	return snaps, rows.Err()
}

// Add stores data under a freshly generated id and returns the id. The id is
// also written into the document's "id" field.
func (s *Store) Add(ctx context.Context, collection string, data any) (string, error) {
	fields, err := toFields(data)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	fields["id"] = id

	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		collection, id, string(raw),
	)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// Set creates or replaces the document with the given id.
func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	fields, err := toFields(data)
	if err != nil {
		return err
	}
	fields["id"] = id

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		collection, id, string(raw),
	)
	if err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

// Update applies patch to an existing document in one transaction.
func (s *Store) Update(ctx context.Context, collection, id string, patch Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	fields := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := patch.apply(fields); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	updated, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?`,
		string(updated), collection, id,
	); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// toFields converts a struct or map into a generic field map via JSON.
func toFields(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("document must be an object: %w", err)
	}
	return fields, nil
}
