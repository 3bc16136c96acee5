package mfilter

import (
	"regexp"
	"strings"

	"hyperwatch/internal/domain"
)

// cond tests the value found at a path. found is false when the path is
// absent, in which case v is nil.
type cond interface {
	test(v any, found bool) bool
}

type eq struct{ want any }

func (c eq) test(v any, found bool) bool {
	if !found {
		return c.want == nil
	}
	if domain.ValuesEqual(v, c.want) {
		return true
	}
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if domain.ValuesEqual(item, c.want) {
				return true
			}
		}
	}
	return false
}

type not struct{ inner cond }

func (c not) test(v any, found bool) bool {
	return !c.inner.test(v, found)
}

type all []cond

func (c all) test(v any, found bool) bool {
	for _, inner := range c {
		if !inner.test(v, found) {
			return false
		}
	}
	return true
}

type in []cond

func (c in) test(v any, found bool) bool {
	for _, inner := range c {
		if inner.test(v, found) {
			return true
		}
	}
	return false
}

type exists bool

func (c exists) test(_ any, found bool) bool {
	return found == bool(c)
}

type compare struct {
	op   string
	want any
}

func (c compare) test(v any, found bool) bool {
	if !found {
		return false
	}
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if c.one(item) {
				return true
			}
		}
		return false
	}
	return c.one(v)
}

func (c compare) one(v any) bool {
	var r int
	if a, ok := domain.ToFloat(v); ok {
		b, ok := domain.ToFloat(c.want)
		if !ok {
			return false
		}
		switch {
		case a < b:
			r = -1
		case a > b:
			r = 1
		}
	} else if a, ok := v.(string); ok {
		b, ok := c.want.(string)
		if !ok {
			return false
		}
		r = strings.Compare(a, b)
	} else {
		return false
	}

	switch c.op {
	case "$gt":
		return r > 0
	case "$gte":
		return r >= 0
	case "$lt":
		return r < 0
	default:
		return r <= 0
	}
}

type match struct{ re *regexp.Regexp }

func (c match) test(v any, found bool) bool {
	if !found {
		return false
	}
	switch t := v.(type) {
	case string:
		return c.re.MatchString(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && c.re.MatchString(s) {
				return true
			}
		}
	}
	return false
}

// lookup resolves a dotted path. Lists met along the way are traversed and
// the values found in their elements are collected into a list.
func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	parts := strings.Split(path, ".")
	for i, part := range parts {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case domain.Event:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			rest := strings.Join(parts[i:], ".")
			var out []any
			for _, item := range node {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if v, ok := lookup(m, rest); ok {
					out = append(out, v)
				}
			}
			if len(out) == 0 {
				return nil, false
			}
			return out, true
		default:
			return nil, false
		}
	}
	return cur, true
}
