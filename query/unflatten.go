package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/syssam/dsr"
)

// Unflatten turns a map of dot-separated paths into nested maps:
//
//	{"A.B": 1, "A.C": 2} => {"A": {"B": 1, "C": 2}}
//
// Paths are inserted in sorted order, so a prefix is always seen before the
// paths below it. A path that is both a value and a prefix of another path,
// as in {"A": 1, "A.B": 2}, fails with a ConflictingLevelsError.
func Unflatten(flat map[string]any) (map[string]any, error) {
	paths := make([]string, 0, len(flat))
	for p, v := range flat {
		if _, ok := v.(map[string]any); ok {
			return nil, fmt.Errorf("%w: unflatten expects a flattened map, %q holds an object", dsr.ErrConflictingLevels, p)
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make(map[string]any)
	for _, path := range paths {
		levels := strings.Split(path, ".")
		node := out
		for i, level := range levels[:len(levels)-1] {
			next, ok := node[level]
			if !ok {
				child := make(map[string]any)
				node[level] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return nil, &dsr.ConflictingLevelsError{Path: path, Prefix: strings.Join(levels[:i+1], ".")}
			}
			node = child
		}
		last := levels[len(levels)-1]
		if _, ok := node[last].(map[string]any); ok {
			return nil, &dsr.ConflictingLevelsError{Path: path, Prefix: path}
		}
		node[last] = flat[path]
	}
	return out, nil
}
