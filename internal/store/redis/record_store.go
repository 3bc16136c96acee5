// Package redis provides Redis-based implementations of the store interfaces.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hyperwatch/internal/config"
	"hyperwatch/internal/domain"
	"hyperwatch/internal/store"
)

// Key layout: every document is a hash whose field values are JSON encoded,
// and every collection keeps a set of its document ids.
const (
	keyPrefix = "hw:"
	idsSuffix = ":_ids"
)

// RecordStore implements store.RecordStore using Redis hashes. A partial
// update is a plain HSET of the changed fields.
type RecordStore struct {
	client *redis.Client
}

// NewRecordStore creates a new Redis-backed record store.
func NewRecordStore(cfg *config.RedisConfig) (*RecordStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RecordStore{client: client}, nil
}

// NewRecordStoreWithClient wraps an existing client.
func NewRecordStoreWithClient(client *redis.Client) *RecordStore {
	return &RecordStore{client: client}
}

func docKey(collection, id string) string {
	return keyPrefix + collection + ":" + id
}

func idsKey(collection string) string {
	return keyPrefix + collection + idsSuffix
}

// encode turns a document into HSET arguments.
func encode(doc store.Document) ([]any, error) {
	args := make([]any, 0, len(doc)*2)
	for k, v := range doc {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %s: %w", k, err)
		}
		args = append(args, k, string(data))
	}
	return args, nil
}

func decode(fields map[string]string) (store.Document, error) {
	doc := make(store.Document, len(fields))
	for k, raw := range fields {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal field %s: %w", k, err)
		}
		doc[k] = v
	}
	return doc, nil
}

// Find loads every document of the collection and filters it client side.
func (s *RecordStore) Find(ctx context.Context, collection string, filter store.Document, sort string) ([]store.Document, error) {
	ids, err := s.client.SMembers(ctx, idsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, docKey(collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}

	var out []store.Document
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		doc, err := decode(fields)
		if err != nil {
			return nil, err
		}
		if store.Matches(doc, filter) {
			out = append(out, doc)
		}
	}
	// Ties on sort keep id order, matching the SQL store.
	store.SortBy(out, domain.FieldID)
	store.SortBy(out, sort)
	return out, nil
}

// Get retrieves a document by id.
func (s *RecordStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	fields, err := s.client.HGetAll(ctx, docKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return decode(fields)
}

// Upsert writes match and set onto the document identified by match.
// Match fields are identity fields, so rewriting them never changes data.
func (s *RecordStore) Upsert(ctx context.Context, collection string, match, set store.Document) (string, error) {
	id := store.DocumentID(match)
	doc := store.Merge(store.Merge(store.Document{domain.FieldID: id}, match), set)
	args, err := encode(doc)
	if err != nil {
		return "", err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, docKey(collection, id), args...)
		pipe.SAdd(ctx, idsKey(collection), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
	}
	return id, nil
}

// Update merges set into an existing document.
func (s *RecordStore) Update(ctx context.Context, collection, id string, set store.Document) error {
	key := docKey(collection, id)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	if len(set) == 0 {
		return nil
	}

	args, err := encode(set)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Insert replaces whole documents in one transaction.
func (s *RecordStore) Insert(ctx context.Context, collection string, docs ...store.Document) error {
	type entry struct {
		id   string
		args []any
	}
	entries := make([]entry, 0, len(docs))
	for _, doc := range docs {
		id, err := store.IDOf(doc)
		if err != nil {
			return err
		}
		args, err := encode(doc)
		if err != nil {
			return err
		}
		entries = append(entries, entry{id: id, args: args})
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			key := docKey(collection, e.id)
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, e.args...)
			pipe.SAdd(ctx, idsKey(collection), e.id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

// Delete removes a document and its index entry.
func (s *RecordStore) Delete(ctx context.Context, collection, id string) error {
	n, err := s.client.Del(ctx, docKey(collection, id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if err := s.client.SRem(ctx, idsKey(collection), id).Err(); err != nil {
		return fmt.Errorf("failed to unindex %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RecordStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
