// Package archiver implements the alarm state machine. Each check event is
// compared with the stored alarm record of the same routing key to compute
// its status (off, ongoing, stealthy, bagot, cancelled); the record is then
// created or patched and status changes are appended to the history log.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/mohae/deepcopy"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/metrics"
	"hyperwatch/internal/store"
)

// Fields never copied into an existing alarm record.
var excludedFields = map[string]bool{
	domain.FieldPerfData:   true,
	domain.FieldProcessing: true,
}

// Archiver computes alarm statuses and maintains alarm records.
type Archiver struct {
	store   store.RecordStore
	history *LogBuffer
	autolog bool
	logger  *slog.Logger
	now     func() time.Time

	spec atomic.Pointer[domain.StateSpec]
}

// New creates an archiver. When autolog is set, every status change is
// appended to history.
func New(s store.RecordStore, history *LogBuffer, autolog bool, logger *slog.Logger) *Archiver {
	a := &Archiver{
		store:   s,
		history: history,
		autolog: autolog,
		logger:  logger,
		now:     time.Now,
	}
	spec := domain.DefaultStateSpec()
	a.spec.Store(&spec)
	return a
}

// Spec returns the active thresholds.
func (a *Archiver) Spec() domain.StateSpec {
	return *a.spec.Load()
}

// Beat reloads the state-spec record and flushes pending history entries.
// The record is used only when exactly one exists; otherwise the defaults
// apply.
func (a *Archiver) Beat(ctx context.Context) error {
	docs, err := a.store.Find(ctx, store.CollectionObjects, store.Document{
		domain.FieldRecordType: domain.RecordTypeStateSpec,
	}, "")
	if err != nil {
		return fmt.Errorf("failed to load state-spec: %w", err)
	}

	spec := domain.DefaultStateSpec()
	if len(docs) == 1 {
		if err := mapstructure.Decode(docs[0], &spec); err != nil {
			return fmt.Errorf("failed to decode state-spec: %w", err)
		}
	} else if len(docs) > 1 {
		a.logger.Warn("several state-spec records found, using defaults", "count", len(docs))
	}
	a.spec.Store(&spec)
	a.logger.Debug("state-spec loaded",
		"bagot_freq", spec.Bagot.Freq,
		"bagot_time", spec.Bagot.Time,
		"stealthy_time", spec.StealthyTime,
		"restore_event", spec.RestoreEvent,
	)

	return a.Flush(ctx)
}

// Flush writes buffered history entries.
func (a *Archiver) Flush(ctx context.Context) error {
	if a.history == nil {
		return nil
	}
	return a.history.Flush(ctx)
}

// CheckEvent runs the state machine for ev, stored under id. ev is updated
// in place with its status and bookkeeping fields. When the state changed
// and autolog is on, the id of the history entry is returned.
func (a *Archiver) CheckEvent(ctx context.Context, id string, ev domain.Event) (string, error) {
	spec := a.Spec()
	ts := ev.EnsureTimestamp(a.now())
	state := ev.IntOr(domain.FieldState, domain.StateOK)
	stateType := ev.IntOr(domain.FieldStateType, domain.StateTypeHard)

	doc, err := a.store.Get(ctx, store.CollectionAlarms, id)
	readFailed := err != nil && !errors.Is(err, domain.ErrNotFound)
	if readFailed {
		a.logger.Warn("failed to read alarm record, treating as new", "rk", id, "error", err)
	}

	var (
		prev    domain.Event
		changed bool
	)
	if err != nil {
		initStatus(ev)
		ev[domain.FieldLastStateChange] = ts
		changed = true
	} else {
		prev = domain.Event(doc)
		prevState := prev.IntOr(domain.FieldState, domain.StateOK)
		prevType := prev.IntOr(domain.FieldStateType, domain.StateTypeHard)
		lastChange := prev.IntOr(domain.FieldLastStateChange, ts)

		if state != prevState {
			ev[domain.FieldPreviousState] = prevState
		}
		changed = state != prevState || stateType != prevType

		checkStatuses(spec, ev, prev)

		ev[domain.FieldLastStateChange] = lastChange
		if changed {
			if (state == domain.StateOK) != (prevState == domain.StateOK) {
				ev[domain.FieldPreviousStateChangeTs] = lastChange
			}
			ev[domain.FieldLastStateChange] = ts
		}
	}

	status := ev.Status()
	metrics.AlarmStatusTotal.WithLabelValues(status.String()).Inc()
	a.logger.Debug("alarm status set", "rk", id, "status", status, "changed", changed)

	var merged domain.Event
	if prev == nil {
		merged, err = a.storeNew(ctx, id, ev, readFailed)
	} else {
		merged, err = a.storeDelta(ctx, id, ev, prev)
	}
	if err != nil {
		return "", err
	}

	if !changed || !a.autolog {
		return "", nil
	}
	return a.log(ctx, id, merged)
}

func (a *Archiver) storeNew(ctx context.Context, id string, ev domain.Event, upsert bool) (domain.Event, error) {
	record := ev.Clone()
	record[domain.FieldID] = id
	stampOwner(record)
	// Inactive ack and cancel are stored as empty maps.
	for _, field := range []string{domain.FieldAck, domain.FieldCancel} {
		if record[field] == nil {
			record[field] = map[string]any{}
		}
	}

	if upsert {
		if _, err := a.store.Upsert(ctx, store.CollectionAlarms, store.Document{domain.FieldID: id}, record); err != nil {
			return nil, fmt.Errorf("failed to store alarm record %s: %w", id, err)
		}
		return record, nil
	}
	if err := a.store.Insert(ctx, store.CollectionAlarms, record); err != nil {
		return nil, fmt.Errorf("failed to store alarm record %s: %w", id, err)
	}
	return record, nil
}

func (a *Archiver) storeDelta(ctx context.Context, id string, ev, prev domain.Event) (domain.Event, error) {
	delta := Delta(ev, prev)
	if len(delta) > 0 {
		if err := a.store.Update(ctx, store.CollectionAlarms, id, delta); err != nil {
			return nil, fmt.Errorf("failed to update alarm record %s: %w", id, err)
		}
	}
	return domain.Event(store.Merge(prev.Clone(), delta)), nil
}

// Delta returns the fields to patch into the stored record prev after the
// status of ev was computed.
func Delta(ev, prev domain.Event) store.Document {
	delta := store.Document{}
	status := ev.Status()
	settled := status == domain.StatusOff || status == domain.StatusOngoing

	ack := prev[domain.FieldAck]
	if ack == nil || status == domain.StatusOff {
		ack = map[string]any{}
	}
	patch(delta, prev, domain.FieldAck, ack)

	cancel := prev[domain.FieldCancel]
	if cancel == nil || settled {
		cancel = map[string]any{}
	}
	patch(delta, prev, domain.FieldCancel, cancel)

	if _, ok := prev[domain.FieldTicketDeclared]; ok && status == domain.StatusOff {
		delta[domain.FieldTicketDeclared] = map[string]any{}
	}

	for k, v := range ev {
		if excludedFields[k] {
			continue
		}
		if old, ok := prev[k]; !ok || !domain.ValuesEqual(old, v) {
			delta[k] = v
		}
	}

	reset := false
	if prev.Bool(domain.FieldKeepState) && ev.IntOr(domain.FieldState, domain.StateOK) == domain.StateOK {
		delta[domain.FieldKeepState] = false
		reset = true
	}
	if ev.Has(domain.FieldKeepState) {
		output, _ := prev[domain.FieldOutput].(string)
		delta[domain.FieldOutput] = output
	} else if !reset && prev.Bool(domain.FieldKeepState) {
		delta[domain.FieldState] = prev[domain.FieldState]
	}

	return delta
}

// patch adds field to delta unless prev already holds value.
func patch(delta, prev store.Document, field string, value any) {
	if old, ok := prev[field]; !ok || !domain.ValuesEqual(old, value) {
		delta[field] = value
	}
}

func (a *Archiver) log(ctx context.Context, id string, merged domain.Event) (string, error) {
	entry := deepcopy.Copy(map[string]any(merged)).(map[string]any)
	now := a.now()
	entryID := fmt.Sprintf("%s.%d.%06d", id, now.Unix(), now.Nanosecond()/1000)
	entry[domain.FieldID] = entryID
	entry[domain.FieldEventID] = id
	stampOwner(entry)

	if a.history == nil {
		if err := a.store.Insert(ctx, store.CollectionHistory, entry); err != nil {
			return "", fmt.Errorf("failed to log alarm %s: %w", id, err)
		}
		return entryID, nil
	}
	if err := a.history.Append(ctx, entry); err != nil {
		a.logger.Error("failed to flush history", "rk", id, "error", err)
	}
	return entryID, nil
}

// Logs returns the history entries of one alarm, oldest first.
func (a *Archiver) Logs(ctx context.Context, id string) ([]store.Document, error) {
	docs, err := a.store.Find(ctx, store.CollectionHistory, store.Document{domain.FieldEventID: id}, domain.FieldTimestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", id, err)
	}
	return docs, nil
}

func stampOwner(doc map[string]any) {
	doc[domain.FieldOwner] = domain.DefaultRecordOwn
	doc[domain.FieldOwnerRead] = true
	doc[domain.FieldGroupRead] = true
	doc[domain.FieldOtherRead] = true
}
