package graph

import (
	"strconv"
	"strings"
)

// Row is one retrieved record. Keys are top-level field names; values may
// be nested maps and lists.
type Row map[string]any

// Get returns the value at the dot-separated path. Numeric segments index
// into lists. A key holding the whole dotted path takes precedence, so flat
// rows keyed by "a.b" resolve as well.
func (r Row) Get(path string) (any, bool) {
	if v, ok := r[path]; ok {
		return v, true
	}
	return lookup(map[string]any(r), strings.Split(path, "."))
}

func lookup(v any, levels []string) (any, bool) {
	for _, level := range levels {
		if m, ok := asMap(v); ok {
			next, ok := m[level]
			if !ok {
				return nil, false
			}
			v = next
			continue
		}
		list, ok := v.([]any)
		if !ok {
			return nil, false
		}
		i, err := strconv.Atoi(level)
		if err != nil || i < 0 || i >= len(list) {
			return nil, false
		}
		v = list[i]
	}
	return v, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Row:
		return map[string]any(m), true
	}
	return nil, false
}

// RefinedPaths expands a schema path into the concrete paths present in the
// row, addressing list elements individually. For a row
// {"children": [{"name": "a"}, {"name": "b"}]} the path "children.name"
// refines to "children.0.name" and "children.1.name". Paths that do not
// exist in the row yield nothing.
func (r Row) RefinedPaths(path FieldPath) []string {
	if _, ok := r[string(path)]; ok && strings.Contains(string(path), ".") {
		return []string{string(path)}
	}
	var out []string
	refine(map[string]any(r), path.Levels(), nil, &out)
	return out
}

func refine(v any, levels []string, prefix []string, out *[]string) {
	if len(levels) == 0 {
		if list, ok := v.([]any); ok {
			for i := range list {
				*out = append(*out, strings.Join(append(prefix, strconv.Itoa(i)), "."))
			}
			return
		}
		*out = append(*out, strings.Join(prefix, "."))
		return
	}
	if m, ok := asMap(v); ok {
		if next, ok := m[levels[0]]; ok {
			refine(next, levels[1:], append(prefix, levels[0]), out)
		}
		return
	}
	if list, ok := v.([]any); ok {
		for i, elem := range list {
			refine(elem, levels, append(prefix, strconv.Itoa(i)), out)
		}
	}
}

// Set assigns v at the dot-separated path, creating intermediate maps. List
// elements are addressed by index and must exist.
func (r Row) Set(path string, v any) bool {
	levels := strings.Split(path, ".")
	var cur any = map[string]any(r)
	for i, level := range levels {
		last := i == len(levels)-1
		if m, ok := asMap(cur); ok {
			if last {
				m[level] = v
				return true
			}
			next, ok := m[level]
			if !ok || next == nil {
				next = make(map[string]any)
				m[level] = next
			}
			cur = next
			continue
		}
		list, ok := cur.([]any)
		if !ok {
			return false
		}
		idx, err := strconv.Atoi(level)
		if err != nil || idx < 0 || idx >= len(list) {
			return false
		}
		if last {
			list[idx] = v
			return true
		}
		cur = list[idx]
	}
	return false
}
