// Package storetest holds behaviour tests shared by every store.RecordStore
// implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/store"
)

// Run exercises a RecordStore created fresh by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.RecordStore) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), store.CollectionAlarms, "nope")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("UpsertMergesWithoutLosingFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		match := store.Document{"type": "component", "name": "db01"}

		id, err := s.Upsert(ctx, store.CollectionEntities, match, store.Document{"hostgroups": []any{"prod"}})
		require.NoError(t, err)
		again, err := s.Upsert(ctx, store.CollectionEntities, match, store.Document{"mCrit": "90"})
		require.NoError(t, err)
		require.Equal(t, id, again)

		doc, err := s.Get(ctx, store.CollectionEntities, id)
		require.NoError(t, err)
		require.Equal(t, "db01", doc["name"])
		require.Equal(t, "90", doc["mCrit"])
		require.Equal(t, []any{"prod"}, doc["hostgroups"])

		all, err := s.Find(ctx, store.CollectionEntities, nil, "")
		require.NoError(t, err)
		require.Len(t, all, 1)
	})

	t.Run("UpsertWithExplicitID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.Upsert(ctx, store.CollectionObjects, store.Document{"_id": "rule-1"}, store.Document{"name": "r"})
		require.NoError(t, err)
		require.Equal(t, "rule-1", id)
	})

	t.Run("UpdateMergesAndRequiresDocument", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.ErrorIs(t, s.Update(ctx, store.CollectionAlarms, "rk", store.Document{"status": 1}), domain.ErrNotFound)

		require.NoError(t, s.Insert(ctx, store.CollectionAlarms, store.Document{"_id": "rk", "state": float64(2), "output": "bad"}))
		require.NoError(t, s.Update(ctx, store.CollectionAlarms, "rk", store.Document{"state": 0, "ack": map[string]any{}}))

		doc, err := s.Get(ctx, store.CollectionAlarms, "rk")
		require.NoError(t, err)
		require.True(t, domain.ValuesEqual(doc["state"], 0))
		require.Equal(t, "bad", doc["output"])
		require.Equal(t, map[string]any{}, doc["ack"])
	})

	t.Run("InsertReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, store.CollectionAlarms, store.Document{"_id": "rk", "a": "1"}))
		require.NoError(t, s.Insert(ctx, store.CollectionAlarms, store.Document{"_id": "rk", "b": "2"}))

		doc, err := s.Get(ctx, store.CollectionAlarms, "rk")
		require.NoError(t, err)
		require.NotContains(t, doc, "a")
		require.Equal(t, "2", doc["b"])

		require.Error(t, s.Insert(ctx, store.CollectionAlarms, store.Document{"b": "no id"}))
	})

	t.Run("FindFiltersAndSorts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, store.CollectionObjects,
			store.Document{"_id": "c", "crecord_type": "event_filter", "priority": float64(3)},
			store.Document{"_id": "a", "crecord_type": "event_filter", "priority": float64(1)},
			store.Document{"_id": "b", "crecord_type": "event_filter", "priority": float64(2)},
			store.Document{"_id": "d", "crecord_type": "defaultrule", "action": "drop"},
		))

		docs, err := s.Find(ctx, store.CollectionObjects, store.Document{"crecord_type": "event_filter"}, "priority")
		require.NoError(t, err)
		require.Len(t, docs, 3)
		require.Equal(t, "a", docs[0]["_id"])
		require.Equal(t, "b", docs[1]["_id"])
		require.Equal(t, "c", docs[2]["_id"])
	})

	t.Run("FindBreaksSortTiesByID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ids := []string{"rk.100.000004", "rk.100.000001", "rk.100.000003", "rk.100.000002", "rk.099.000009"}
		for _, id := range ids {
			ts := 100
			if id == "rk.099.000009" {
				ts = 99
			}
			require.NoError(t, s.Insert(ctx, store.CollectionHistory, store.Document{"_id": id, "event_id": "rk", "timestamp": ts}))
		}

		docs, err := s.Find(ctx, store.CollectionHistory, store.Document{"event_id": "rk"}, "timestamp")
		require.NoError(t, err)
		got := make([]any, 0, len(docs))
		for _, d := range docs {
			got = append(got, d["_id"])
		}
		require.Equal(t, []any{"rk.099.000009", "rk.100.000001", "rk.100.000002", "rk.100.000003", "rk.100.000004"}, got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.ErrorIs(t, s.Delete(ctx, store.CollectionObjects, "x"), domain.ErrNotFound)
		require.NoError(t, s.Insert(ctx, store.CollectionObjects, store.Document{"_id": "x"}))
		require.NoError(t, s.Delete(ctx, store.CollectionObjects, "x"))
		_, err := s.Get(ctx, store.CollectionObjects, "x")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}
