package eventstore

import (
	"context"
	"fmt"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/store"
	"hyperwatch/internal/topology"
)

type window struct {
	start, end int64
}

// downtimeIndex maps component/resource to their scheduled downtimes.
type downtimeIndex struct {
	windows map[string][]window
}

func downtimeKey(component, resource string) string {
	return component + "/" + resource
}

// end returns the latest end among the downtimes active at ts.
func (d *downtimeIndex) end(component, resource string, ts int64) (int64, bool) {
	var (
		latest int64
		found  bool
	)
	for _, w := range d.windows[downtimeKey(component, resource)] {
		if w.start <= ts && ts <= w.end && (!found || w.end > latest) {
			latest, found = w.end, true
		}
	}
	return latest, found
}

func (e *Engine) reloadDowntimes(ctx context.Context) error {
	docs, err := e.store.Find(ctx, store.CollectionEntities, store.Document{"type": topology.TypeDowntime}, "")
	if err != nil {
		return fmt.Errorf("failed to load downtimes: %w", err)
	}

	idx := &downtimeIndex{windows: make(map[string][]window)}
	for _, doc := range docs {
		d := domain.Event(doc)
		start, okStart := d.Int("start")
		end, okEnd := d.Int("end")
		if !okStart || !okEnd {
			continue
		}
		key := downtimeKey(d.String(domain.FieldComponent), d.String(domain.FieldResource))
		idx.windows[key] = append(idx.windows[key], window{start: start, end: end})
	}
	e.downtimes.Store(idx)
	e.logger.Debug("downtimes loaded", "count", len(docs))
	return nil
}
