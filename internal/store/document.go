package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"hyperwatch/internal/domain"
)

// DocumentID returns the id of the document identified by match.
func DocumentID(match Document) string {
	if id, ok := match[domain.FieldID].(string); ok && id != "" {
		return id
	}
	// encoding/json sorts map keys, so equal matches hash equally.
	raw, err := json.Marshal(match)
	if err != nil {
		raw = []byte(fmt.Sprint(match))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// IDOf returns the _id of a document to be inserted.
func IDOf(doc Document) (string, error) {
	id, ok := doc[domain.FieldID].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: _id", domain.ErrMissingField)
	}
	return id, nil
}

// Merge copies set onto doc, field by field.
func Merge(doc, set Document) Document {
	if doc == nil {
		doc = make(Document, len(set))
	}
	for k, v := range set {
		doc[k] = v
	}
	return doc
}

// Matches reports whether doc carries every field of filter with an equal value.
func Matches(doc, filter Document) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !domain.ValuesEqual(got, want) {
			return false
		}
	}
	return true
}

// SortBy orders docs ascending by field. Documents missing the field sort
// first; numbers compare numerically, everything else as text.
func SortBy(docs []Document, field string) {
	if field == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return less(docs[i][field], docs[j][field])
	})
}

func less(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b != nil
	}
	fa, aok := domain.ToFloat(a)
	fb, bok := domain.ToFloat(b)
	if aok && bok {
		return fa < fb
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)) < 0
}
