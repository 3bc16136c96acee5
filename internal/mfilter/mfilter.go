// Package mfilter implements the rule predicate language of the filter engine.
//
// A predicate is stored as JSON text using document-query operators:
//
//	{"connector": "nagios", "state": {"$gte": 2}, "$or": [{"component": "db01"}, {"hostgroups": "prod"}]}
//
// Parse turns the text into a tree of Nodes once; Match evaluates the tree
// against an event without reflection on the text.
package mfilter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"hyperwatch/internal/domain"
)

// Node is a parsed predicate.
type Node interface {
	Match(doc map[string]any) bool
}

// Parse converts stored predicate text into a Node.
func Parse(text string) (Node, error) {
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: not valid JSON", domain.ErrInvalidFilter)
	}
	root := gjson.Parse(text)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: predicate must be an object", domain.ErrInvalidFilter)
	}
	return parseDocument(root)
}

// All matches every document. It is the parse result of "{}".
type All struct{}

func (All) Match(map[string]any) bool { return true }

type and []Node

func (n and) Match(doc map[string]any) bool {
	for _, c := range n {
		if !c.Match(doc) {
			return false
		}
	}
	return true
}

type or []Node

func (n or) Match(doc map[string]any) bool {
	for _, c := range n {
		if c.Match(doc) {
			return true
		}
	}
	return false
}

type nor []Node

func (n nor) Match(doc map[string]any) bool {
	return !or(n).Match(doc)
}

// field applies value conditions to one dotted path.
type field struct {
	path  string
	conds []cond
}

func (n field) Match(doc map[string]any) bool {
	v, found := lookup(doc, n.path)
	for _, c := range n.conds {
		if !c.test(v, found) {
			return false
		}
	}
	return true
}

func parseDocument(obj gjson.Result) (Node, error) {
	var (
		nodes []Node
		err   error
	)
	obj.ForEach(func(key, value gjson.Result) bool {
		var n Node
		n, err = parseEntry(key.String(), value)
		if err != nil {
			return false
		}
		nodes = append(nodes, n)
		return true
	})
	if err != nil {
		return nil, err
	}
	switch len(nodes) {
	case 0:
		return All{}, nil
	case 1:
		return nodes[0], nil
	default:
		return and(nodes), nil
	}
}

func parseEntry(key string, value gjson.Result) (Node, error) {
	switch key {
	case "$and", "$or", "$nor":
		children, err := parseList(key, value)
		if err != nil {
			return nil, err
		}
		switch key {
		case "$and":
			return and(children), nil
		case "$or":
			return or(children), nil
		default:
			return nor(children), nil
		}
	}
	if strings.HasPrefix(key, "$") {
		return nil, fmt.Errorf("%w: unknown top-level operator %s", domain.ErrInvalidFilter, key)
	}

	if value.IsObject() && isOperatorObject(value) {
		conds, err := parseConds(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return field{path: key, conds: conds}, nil
	}
	return field{path: key, conds: []cond{eq{want: value.Value()}}}, nil
}

func parseList(op string, value gjson.Result) ([]Node, error) {
	if !value.IsArray() {
		return nil, fmt.Errorf("%w: %s expects an array", domain.ErrInvalidFilter, op)
	}
	var out []Node
	for _, item := range value.Array() {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: %s entries must be objects", domain.ErrInvalidFilter, op)
		}
		n, err := parseDocument(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func isOperatorObject(value gjson.Result) bool {
	keys := 0
	ops := true
	value.ForEach(func(key, _ gjson.Result) bool {
		keys++
		if !strings.HasPrefix(key.String(), "$") {
			ops = false
			return false
		}
		return true
	})
	return ops && keys > 0
}

func parseConds(obj gjson.Result) ([]cond, error) {
	var (
		conds []cond
		err   error
	)
	options := obj.Map()["$options"].String()
	obj.ForEach(func(key, value gjson.Result) bool {
		var c cond
		c, err = parseCond(key.String(), value, options)
		if err != nil {
			return false
		}
		if c != nil {
			conds = append(conds, c)
		}
		return true
	})
	return conds, err
}

func parseCond(op string, value gjson.Result, options string) (cond, error) {
	switch op {
	case "$eq":
		return eq{want: value.Value()}, nil
	case "$ne":
		return not{eq{want: value.Value()}}, nil
	case "$gt", "$gte", "$lt", "$lte":
		return compare{op: op, want: value.Value()}, nil
	case "$in", "$nin":
		if !value.IsArray() {
			return nil, fmt.Errorf("%w: %s expects an array", domain.ErrInvalidFilter, op)
		}
		set := in{}
		for _, item := range value.Array() {
			set = append(set, eq{want: item.Value()})
		}
		if op == "$nin" {
			return not{set}, nil
		}
		return set, nil
	case "$exists":
		return exists(value.Bool()), nil
	case "$regex":
		pattern := value.String()
		if strings.Contains(options, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFilter, err)
		}
		return match{re: re}, nil
	case "$options":
		return nil, nil
	case "$not":
		if !value.IsObject() {
			return nil, fmt.Errorf("%w: $not expects an object", domain.ErrInvalidFilter)
		}
		inner, err := parseConds(value)
		if err != nil {
			return nil, err
		}
		return not{all(inner)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %s", domain.ErrInvalidFilter, op)
	}
}
