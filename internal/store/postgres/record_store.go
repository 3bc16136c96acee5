package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/store"
)

// RecordStore implements store.RecordStore on a single JSONB table.
// Upserts and updates use the jsonb || operator, so fields not named in a
// write are never touched.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new PostgreSQL-backed record store.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

func marshal(doc store.Document) ([]byte, error) {
	if doc == nil {
		doc = store.Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}

// Find selects documents containing filter, ordered by the sort field.
func (r *RecordStore) Find(ctx context.Context, collection string, filter store.Document, sort string) ([]store.Document, error) {
	filterJSON, err := marshal(filter)
	if err != nil {
		return nil, err
	}
	if sort == "" {
		sort = domain.FieldID
	}

	query := `
		SELECT doc FROM documents
		WHERE collection = $1 AND doc @> $2::jsonb
		ORDER BY doc->$3 NULLS FIRST, id
	`

	rows, err := r.db.pool.Query(ctx, query, collection, filterJSON, sort)
	if err != nil {
		return nil, fmt.Errorf("failed to find in %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := unmarshal(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// Get retrieves a document by id.
func (r *RecordStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	query := `SELECT doc FROM documents WHERE collection = $1 AND id = $2`

	var data []byte
	err := r.db.pool.QueryRow(ctx, query, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	return unmarshal(data)
}

// Upsert inserts match+set or merges set into the existing document.
func (r *RecordStore) Upsert(ctx context.Context, collection string, match, set store.Document) (string, error) {
	id := store.DocumentID(match)
	insert := store.Merge(store.Merge(store.Document{domain.FieldID: id}, match), set)

	insertJSON, err := marshal(insert)
	if err != nil {
		return "", err
	}
	setJSON, err := marshal(set)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO documents (collection, id, doc, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = documents.doc || $4::jsonb, updated_at = now()
	`

	if _, err := r.db.pool.Exec(ctx, query, collection, id, insertJSON, setJSON); err != nil {
		return "", fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
	}
	return id, nil
}

// Update merges set into an existing document.
func (r *RecordStore) Update(ctx context.Context, collection, id string, set store.Document) error {
	setJSON, err := marshal(set)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents SET doc = doc || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2
	`

	result, err := r.db.pool.Exec(ctx, query, collection, id, setJSON)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Insert replaces whole documents in one batch.
func (r *RecordStore) Insert(ctx context.Context, collection string, docs ...store.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := `
		INSERT INTO documents (collection, id, doc, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`

	batch := &pgx.Batch{}
	for _, doc := range docs {
		id, err := store.IDOf(doc)
		if err != nil {
			return err
		}
		data, err := marshal(doc)
		if err != nil {
			return err
		}
		batch.Queue(query, collection, id, data)
	}

	results := r.db.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range docs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", collection, err)
		}
	}
	return nil
}

// Delete removes a document.
func (r *RecordStore) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`

	result, err := r.db.pool.Exec(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Close closes the underlying pool.
func (r *RecordStore) Close() error {
	r.db.Close()
	return nil
}
