package parser

import (
	"makerworld-stats/internal/snapshot"
	"math"
	"sort"
	"strings"
)

type jsonNumber interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// node is an optional view over decoded json, every accessor on a missing
// node returns another missing node or a zero value.
type node struct {
	value  any
	exists bool
}

func wrap(value any) node {
	return node{value: value, exists: value != nil}
}

var missing = node{}

func (n node) key(k string) node {
	obj, ok := n.value.(map[string]any)
	if !ok {
		return missing
	}
	v, ok := obj[k]
	if !ok {
		return missing
	}
	return wrap(v)
}

// get follows a dot separated path of object keys.
func (n node) get(path string) node {
	cur := n
	for _, k := range strings.Split(path, ".") {
		cur = cur.key(k)
		if !cur.exists {
			return missing
		}
	}
	return cur
}

func (n node) has(k string) bool {
	obj, ok := n.value.(map[string]any)
	if !ok {
		return false
	}
	_, ok = obj[k]
	return ok
}

func (n node) isObject() bool {
	_, ok := n.value.(map[string]any)
	return ok
}

func (n node) list() ([]node, bool) {
	arr, ok := n.value.([]any)
	if !ok {
		return nil, false
	}
	out := make([]node, len(arr))
	for i, v := range arr {
		out[i] = wrap(v)
	}
	return out, true
}

func (n node) str() (string, bool) {
	s, ok := n.value.(string)
	return s, ok
}

func (n node) flag() snapshot.Flag {
	b, ok := n.value.(bool)
	if !ok {
		return snapshot.Flag{}
	}
	return snapshot.KnownFlag(b)
}

// integer only accepts json numbers without a fractional part.
func (n node) integer() (int64, bool) {
	switch v := n.value.(type) {
	case jsonNumber:
		i, err := v.Int64()
		if err == nil {
			return i, true
		}
		f, err := v.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
			return 0, false
		}
		return int64(f), true
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64/2 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

// count accepts numbers and displayed count strings.
func (n node) count() snapshot.Count {
	if s, ok := n.str(); ok {
		return ParseCount(s)
	}
	i, ok := n.integer()
	if !ok {
		return snapshot.Count{}
	}
	return snapshot.KnownCount(i)
}

// walk visits every object under n depth first, keys are visited in sorted
// order so the visit order only depends on the content.
func (n node) walk(visit func(obj node)) {
	switch v := n.value.(type) {
	case map[string]any:
		visit(n)
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			wrap(v[k]).walk(visit)
		}
	case []any:
		for _, item := range v {
			wrap(item).walk(visit)
		}
	}
}
