package store

import (
	"testing"
)

func TestDocumentID(t *testing.T) {
	a := DocumentID(Document{"type": "component", "name": "db01"})
	b := DocumentID(Document{"name": "db01", "type": "component"})
	if a != b {
		t.Errorf("DocumentID depends on key order: %s vs %s", a, b)
	}
	if c := DocumentID(Document{"type": "resource", "name": "db01"}); c == a {
		t.Error("different matches share an id")
	}
	if got := DocumentID(Document{"_id": "explicit", "name": "x"}); got != "explicit" {
		t.Errorf("DocumentID with _id = %q", got)
	}
}

func TestMatches(t *testing.T) {
	doc := Document{"crecord_type": "event_filter", "priority": float64(2)}
	tests := []struct {
		name   string
		filter Document
		want   bool
	}{
		{"empty filter", nil, true},
		{"equal string", Document{"crecord_type": "event_filter"}, true},
		{"equal number across types", Document{"priority": 2}, true},
		{"different value", Document{"crecord_type": "defaultrule"}, false},
		{"missing field", Document{"name": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(doc, tt.filter); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortBy(t *testing.T) {
	docs := []Document{
		{"_id": "c", "priority": float64(10)},
		{"_id": "a", "priority": 2},
		{"_id": "none"},
		{"_id": "b", "priority": float64(3)},
	}
	SortBy(docs, "priority")

	want := []string{"none", "a", "b", "c"}
	for i, id := range want {
		if docs[i]["_id"] != id {
			t.Fatalf("order = %v, want %v", docs, want)
		}
	}
}
