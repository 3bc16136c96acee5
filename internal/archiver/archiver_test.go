package archiver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/store"
	"hyperwatch/internal/store/memory"
)

const t0 = int64(1_700_000_000)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newArchiver(t *testing.T, s store.RecordStore) *Archiver {
	t.Helper()
	a := New(s, nil, true, testLogger())
	var tick int64
	a.now = func() time.Time {
		tick++
		return time.Unix(t0, tick*int64(time.Microsecond))
	}
	return a
}

func checkEvent(state int64, ts int64) domain.Event {
	return domain.Event{
		"connector":      "nagios",
		"connector_name": "nagios1",
		"event_type":     "check",
		"source_type":    "resource",
		"component":      "db01",
		"resource":       "disk",
		"state":          state,
		"state_type":     int64(1),
		"timestamp":      ts,
		"output":         "disk usage",
	}
}

const rk = "nagios.nagios1.check.resource.db01.disk"

func mustCheck(t *testing.T, a *Archiver, ev domain.Event) string {
	t.Helper()
	id, err := a.CheckEvent(context.Background(), rk, ev)
	if err != nil {
		t.Fatalf("CheckEvent error: %v", err)
	}
	return id
}

func record(t *testing.T, s store.RecordStore) domain.Event {
	t.Helper()
	doc, err := s.Get(context.Background(), store.CollectionAlarms, rk)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	return domain.Event(doc)
}

func setSpec(a *Archiver, mutate func(*domain.StateSpec)) {
	spec := domain.DefaultStateSpec()
	mutate(&spec)
	a.spec.Store(&spec)
}

func TestCheckEvent_Scenario(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)

	// A: fresh identity in alarm.
	id := mustCheck(t, a, checkEvent(2, t0))
	if id == "" {
		t.Error("a new record must be logged")
	}
	rec := record(t, s)
	if rec.Status() != domain.StatusOngoing {
		t.Errorf("A status = %v, want ongoing", rec.Status())
	}
	if rec.IntOr("bagot_freq", -1) != 1 || rec.IntOr("ts_first_stealthy", -1) != t0 || rec.IntOr("ts_first_bagot", -1) != t0 {
		t.Errorf("A bookkeeping = %v/%v/%v", rec["bagot_freq"], rec["ts_first_stealthy"], rec["ts_first_bagot"])
	}
	if rec[domain.FieldOwner] != "root" {
		t.Error("new record must carry the owner")
	}

	// B: back to OK inside the stealthy window.
	id = mustCheck(t, a, checkEvent(0, t0+10))
	if id == "" {
		t.Error("a state change must be logged")
	}
	rec = record(t, s)
	if rec.Status() != domain.StatusStealthy {
		t.Errorf("B status = %v, want stealthy", rec.Status())
	}
	if rec.IntOr("previous_state", -1) != 2 || rec.IntOr("previous_state_change_ts", -1) != t0 || rec.IntOr("last_state_change", -1) != t0+10 {
		t.Errorf("B change fields = %v/%v/%v", rec["previous_state"], rec["previous_state_change_ts"], rec["last_state_change"])
	}

	// C: still OK, beyond the stealthy window.
	id = mustCheck(t, a, checkEvent(0, t0+400))
	if id != "" {
		t.Errorf("unchanged state must not be logged, got %q", id)
	}
	rec = record(t, s)
	if rec.Status() != domain.StatusOff || rec.IntOr("ts_first_stealthy", -1) != 0 {
		t.Errorf("C status = %v, ts_first_stealthy = %v", rec.Status(), rec["ts_first_stealthy"])
	}

	logs, err := a.Logs(context.Background(), rk)
	if err != nil {
		t.Fatalf("Logs error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("history entries = %d, want 2", len(logs))
	}
	if logs[0]["state"] != int64(2) || logs[1]["state"] != int64(0) || logs[1][domain.FieldEventID] != rk {
		t.Errorf("history = %v", logs)
	}
}

func TestCheckEvent_OKInsideShortStealthyWindowIsOff(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)
	setSpec(a, func(spec *domain.StateSpec) { spec.StealthyTime = 5 })

	mustCheck(t, a, checkEvent(2, t0))
	mustCheck(t, a, checkEvent(0, t0+10))
	if got := record(t, s).Status(); got != domain.StatusOff {
		t.Errorf("status = %v, want off", got)
	}
}

func TestCheckEvent_NewOKEvent(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)

	mustCheck(t, a, checkEvent(0, t0))
	rec := record(t, s)
	if rec.Status() != domain.StatusOff || rec.IntOr("bagot_freq", -1) != 0 || rec.IntOr("ts_first_stealthy", -1) != 0 {
		t.Errorf("record = %v", rec)
	}
}

func TestCheckEvent_DefaultsTimestamp(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)

	ev := checkEvent(2, 0)
	delete(ev, "timestamp")
	mustCheck(t, a, ev)
	if ev.Timestamp() != t0 {
		t.Errorf("timestamp = %d, want %d", ev.Timestamp(), t0)
	}
}

func TestCheckEvent_OKRecovery(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)

	mustCheck(t, a, checkEvent(2, t0))
	mustCheck(t, a, checkEvent(2, t0+1000))
	if got := record(t, s).Status(); got != domain.StatusOngoing {
		t.Fatalf("sustained alarm status = %v, want ongoing", got)
	}
	mustCheck(t, a, checkEvent(0, t0+2000))
	if got := record(t, s).Status(); got != domain.StatusOff {
		t.Errorf("first OK status = %v, want off", got)
	}
}

func TestCheckEvent_BagotMonotonic(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)
	setSpec(a, func(spec *domain.StateSpec) { spec.Bagot.Freq = 3 })

	mustCheck(t, a, checkEvent(2, t0))
	mustCheck(t, a, checkEvent(0, t0+1))
	mustCheck(t, a, checkEvent(2, t0+2))

	last := int64(-1)
	for i := int64(3); i < 10; i++ {
		mustCheck(t, a, checkEvent(2, t0+i))
		rec := record(t, s)
		if rec.Status() != domain.StatusBagot {
			t.Fatalf("event %d status = %v, want bagot", i, rec.Status())
		}
		freq := rec.IntOr("bagot_freq", -1)
		if freq < last {
			t.Fatalf("bagot_freq decreased: %d -> %d", last, freq)
		}
		last = freq
	}
}

func TestCheckEvent_BagotWindowExpires(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)
	setSpec(a, func(spec *domain.StateSpec) {
		spec.Bagot.Freq = 2
		spec.Bagot.Time = 100
	})

	mustCheck(t, a, checkEvent(2, t0))
	mustCheck(t, a, checkEvent(0, t0+1))
	mustCheck(t, a, checkEvent(0, t0+2))
	if got := record(t, s).Status(); got != domain.StatusBagot {
		t.Fatalf("status = %v, want bagot", got)
	}

	mustCheck(t, a, checkEvent(0, t0+1000))
	rec := record(t, s)
	if rec.Status() != domain.StatusOff || rec.IntOr("bagot_freq", -1) != 0 || rec.IntOr("ts_first_bagot", -1) != 0 {
		t.Errorf("expired window record = %v", rec)
	}
}

func TestCheckEvent_Cancelled(t *testing.T) {
	tests := []struct {
		name    string
		restore bool
		state   int64
		want    domain.AlarmStatus
	}{
		{"same state stays cancelled", true, 2, domain.StatusCancelled},
		{"severity change reopens with restore", true, 1, domain.StatusOngoing},
		{"severity change without restore", false, 1, domain.StatusCancelled},
		{"OK always reopens", false, 0, domain.StatusOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.NewRecordStore()
			a := newArchiver(t, s)
			setSpec(a, func(spec *domain.StateSpec) { spec.RestoreEvent = tt.restore })

			prev := checkEvent(2, t0)
			prev["_id"] = rk
			prev["status"] = int64(domain.StatusCancelled)
			prev["cancel"] = map[string]any{"author": "alice"}
			if err := s.Insert(context.Background(), store.CollectionAlarms, prev); err != nil {
				t.Fatal(err)
			}

			mustCheck(t, a, checkEvent(tt.state, t0+1000))
			rec := record(t, s)
			if rec.Status() != tt.want {
				t.Errorf("status = %v, want %v", rec.Status(), tt.want)
			}
			cancel, _ := rec.Map("cancel")
			if kept := len(cancel) > 0; kept != (tt.want == domain.StatusCancelled) {
				t.Errorf("cancel = %v", cancel)
			}
		})
	}
}

func TestCheckEvent_StatusClosure(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)
	setSpec(a, func(spec *domain.StateSpec) {
		spec.Bagot.Freq = 4
		spec.Bagot.Time = 60
		spec.StealthyTime = 20
	})
	r := rand.New(rand.NewSource(7))

	ts := t0
	for i := 0; i < 500; i++ {
		ts += int64(r.Intn(90))
		ev := checkEvent(int64(r.Intn(4)), ts)
		if r.Intn(10) == 0 {
			ev["status"] = int64(domain.StatusCancelled)
		}
		mustCheck(t, a, ev)
		if status := ev.Status(); !status.IsValid() || !domain.AlarmStatus(ev.IntOr("status", -1)).IsValid() {
			t.Fatalf("event %d got status %v", i, ev["status"])
		}
		if ev.IntOr("bagot_freq", -1) < 0 {
			t.Fatalf("event %d bagot_freq = %v", i, ev["bagot_freq"])
		}
	}
}

func TestCheckEvent_AckPreservation(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)

	mustCheck(t, a, checkEvent(2, t0))
	ack := map[string]any{"author": "bob", "comment": "on it"}
	if err := s.Update(context.Background(), store.CollectionAlarms, rk, store.Document{"ack": ack}); err != nil {
		t.Fatal(err)
	}

	mustCheck(t, a, checkEvent(2, t0+1000))
	rec := record(t, s)
	if rec.Status() != domain.StatusOngoing {
		t.Fatalf("status = %v, want ongoing", rec.Status())
	}
	if !reflect.DeepEqual(rec["ack"], ack) {
		t.Errorf("ack = %v, want %v", rec["ack"], ack)
	}

	mustCheck(t, a, checkEvent(0, t0+2000))
	if got, _ := record(t, s).Map("ack"); len(got) != 0 {
		t.Errorf("ack must be cleared when the alarm is off, got %v", got)
	}
}

func TestCheckEvent_AckAndCancelAlwaysPresent(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, s)

	assertPresent := func(step string) {
		t.Helper()
		rec := record(t, s)
		for _, field := range []string{"ack", "cancel"} {
			m, ok := rec.Map(field)
			if !ok {
				t.Errorf("%s: %s = %v, want a map", step, field, rec[field])
				continue
			}
			if len(m) != 0 {
				t.Errorf("%s: %s = %v, want empty", step, field, m)
			}
		}
	}

	mustCheck(t, a, checkEvent(2, t0))
	assertPresent("new record")

	mustCheck(t, a, checkEvent(0, t0+10))
	mustCheck(t, a, checkEvent(2, t0+20))
	assertPresent("after updates")

	// Records written before the fields existed get them on the next event.
	if err := s.Insert(context.Background(), store.CollectionAlarms, store.Document{
		"_id": rk, "state": int64(2), "state_type": int64(1), "status": int64(domain.StatusOngoing), "timestamp": t0 + 20,
	}); err != nil {
		t.Fatal(err)
	}
	mustCheck(t, a, checkEvent(2, t0+30))
	assertPresent("legacy record")
}

func TestDelta(t *testing.T) {
	prev := domain.Event{
		"state":           int64(2),
		"status":          int64(domain.StatusOngoing),
		"output":          "old output",
		"ticket_declared": map[string]any{"ref": "INC1"},
		"ack":             map[string]any{},
		"cancel":          map[string]any{},
		"perf_data_array": []any{map[string]any{"metric": "used", "value": 1.0}},
		"bagot_freq":      1.0,
	}

	t.Run("changed fields only", func(t *testing.T) {
		ev := domain.Event{
			"state":           int64(2),
			"status":          int64(domain.StatusOngoing),
			"output":          "new output",
			"bagot_freq":      int64(1),
			"perf_data_array": []any{map[string]any{"metric": "used", "value": 9.0}},
			"processing":      map[string]any{"x": 1},
		}
		want := store.Document{"output": "new output"}
		if got := Delta(ev, prev); !reflect.DeepEqual(got, want) {
			t.Errorf("Delta() = %v, want %v", got, want)
		}
	})

	t.Run("missing ack and cancel become empty maps", func(t *testing.T) {
		ev := domain.Event{"state": int64(2), "status": int64(domain.StatusOngoing)}
		got := Delta(ev, domain.Event{"state": int64(2), "status": int64(domain.StatusOngoing)})
		want := store.Document{"ack": map[string]any{}, "cancel": map[string]any{}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Delta() = %v, want %v", got, want)
		}
	})

	t.Run("off clears ticket", func(t *testing.T) {
		ev := domain.Event{"state": int64(0), "status": int64(domain.StatusOff)}
		got := Delta(ev, prev)
		if !reflect.DeepEqual(got["ticket_declared"], map[string]any{}) {
			t.Errorf("ticket_declared = %v", got["ticket_declared"])
		}
	})
}

func TestDelta_KeepState(t *testing.T) {
	pinned := domain.Event{
		"state":      int64(2),
		"status":     int64(domain.StatusOngoing),
		"output":     "pinned by operator",
		"keep_state": true,
		"ack":        map[string]any{},
		"cancel":     map[string]any{},
	}

	tests := []struct {
		name string
		ev   domain.Event
		want store.Document
	}{
		{
			name: "state pinned to previous severity",
			ev:   domain.Event{"state": int64(1), "status": int64(domain.StatusOngoing), "output": "warning"},
			want: store.Document{"state": int64(2), "output": "warning"},
		},
		{
			name: "OK releases the pin",
			ev:   domain.Event{"state": int64(0), "status": int64(domain.StatusOff), "output": "ok"},
			want: store.Document{"state": int64(0), "status": int64(domain.StatusOff), "output": "ok", "keep_state": false},
		},
		{
			name: "explicit keep_state keeps output",
			ev:   domain.Event{"state": int64(3), "status": int64(domain.StatusOngoing), "output": "manual", "keep_state": true},
			want: store.Document{"state": int64(3), "output": "pinned by operator"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delta(tt.ev, pinned); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Delta() = %v, want %v", got, tt.want)
			}
		})
	}
}

type flakyStore struct {
	store.RecordStore
}

func (flakyStore) Get(context.Context, string, string) (store.Document, error) {
	return nil, errors.New("connection reset")
}

func TestCheckEvent_ReadFailureTreatedAsNew(t *testing.T) {
	s := memory.NewRecordStore()
	a := newArchiver(t, flakyStore{RecordStore: s})

	id, err := a.CheckEvent(context.Background(), rk, checkEvent(2, t0))
	if err != nil {
		t.Fatalf("CheckEvent error: %v", err)
	}
	if id == "" {
		t.Error("expected history id")
	}
	if got := record(t, s).Status(); got != domain.StatusOngoing {
		t.Errorf("status = %v, want ongoing", got)
	}
}

func TestBeat_StateSpec(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRecordStore()
	a := newArchiver(t, s)

	spec := store.Document{
		"_id":           "state-spec",
		"crecord_type":  "state-spec",
		"bagot":         map[string]any{"freq": 5.0},
		"stealthy_time": 60.0,
	}
	if err := s.Insert(ctx, store.CollectionObjects, spec); err != nil {
		t.Fatal(err)
	}
	if err := a.Beat(ctx); err != nil {
		t.Fatalf("Beat error: %v", err)
	}
	want := domain.StateSpec{
		Bagot:        domain.BagotSpec{Freq: 5, Time: 3600},
		StealthyTime: 60,
		StealthyShow: 300,
		RestoreEvent: true,
	}
	if got := a.Spec(); got != want {
		t.Errorf("Spec() = %+v, want %+v", got, want)
	}

	spec["_id"] = "state-spec-2"
	if err := s.Insert(ctx, store.CollectionObjects, spec); err != nil {
		t.Fatal(err)
	}
	if err := a.Beat(ctx); err != nil {
		t.Fatalf("Beat error: %v", err)
	}
	if got := a.Spec(); got != domain.DefaultStateSpec() {
		t.Errorf("Spec() with two records = %+v, want defaults", got)
	}
}
