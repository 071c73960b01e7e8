package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Root is the name of the synthetic dataset and collection holding the
// identity seed.
const Root = "__ROOT__"

// RootAddress is the address of the synthetic root node. It has no backing
// connector; its fields are the identity seed keys.
var RootAddress = CollectionAddress{Dataset: Root, Collection: Root}

// CollectionAddress identifies a collection within a dataset.
type CollectionAddress struct {
	Dataset    string
	Collection string
}

// ParseCollectionAddress parses an address of the form "dataset:collection".
func ParseCollectionAddress(s string) (CollectionAddress, error) {
	ds, coll, ok := strings.Cut(s, ":")
	if !ok || ds == "" || coll == "" || strings.Contains(coll, ":") {
		return CollectionAddress{}, fmt.Errorf("graph: invalid collection address %q", s)
	}
	return CollectionAddress{Dataset: ds, Collection: coll}, nil
}

// String returns "dataset:collection".
func (a CollectionAddress) String() string {
	return a.Dataset + ":" + a.Collection
}

// IsRoot reports whether a is the root address.
func (a CollectionAddress) IsRoot() bool { return a == RootAddress }

// Field returns the address of the field at path within this collection.
func (a CollectionAddress) Field(path FieldPath) FieldAddress {
	return FieldAddress{Dataset: a.Dataset, Collection: a.Collection, Path: path}
}

// FieldPath is the location of a value within a possibly nested record,
// stored as its dot-joined segments. Two paths are equal iff their segment
// sequences are equal.
type FieldPath string

// NewFieldPath returns the path with the given segments.
func NewFieldPath(levels ...string) FieldPath {
	return FieldPath(strings.Join(levels, "."))
}

// Levels returns the path segments.
func (p FieldPath) Levels() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), ".")
}

// Last returns the final segment.
func (p FieldPath) Last() string {
	s := string(p)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Child returns the path extended by name.
func (p FieldPath) Child(name string) FieldPath {
	if p == "" {
		return FieldPath(name)
	}
	return p + "." + FieldPath(name)
}

// String returns the dot-joined rendering of the path.
func (p FieldPath) String() string { return string(p) }

// FieldAddress identifies a field within a collection.
type FieldAddress struct {
	Dataset    string
	Collection string
	Path       FieldPath
}

// ParseFieldAddress parses "dataset.collection.field.sub" as used in
// dataset references, where the first two segments name the collection.
func ParseFieldAddress(s string) (FieldAddress, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return FieldAddress{}, fmt.Errorf("graph: invalid field address %q", s)
	}
	return FieldAddress{Dataset: parts[0], Collection: parts[1], Path: FieldPath(parts[2])}, nil
}

// Address returns the address of the owning collection.
func (a FieldAddress) Address() CollectionAddress {
	return CollectionAddress{Dataset: a.Dataset, Collection: a.Collection}
}

// String returns "dataset:collection:path".
func (a FieldAddress) String() string {
	return a.Dataset + ":" + a.Collection + ":" + string(a.Path)
}

// Direction is the declared direction of a reference.
type Direction string

// Reference directions. DirectionFrom means values flow from the referenced
// field into this one; DirectionTo the reverse. An empty direction is
// oriented away from the identity seed when the graph is built.
const (
	DirectionNone Direction = ""
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
)

// Reference declares that a field shares values with another field.
type Reference struct {
	Field     FieldAddress
	Direction Direction
}

// MaskingOverride pairs the data type and max length used when masking a
// field, independently of the strategy.
type MaskingOverride struct {
	DataType DataType
	Length   *int
}

// Field describes one value of a collection. Fields with nested Fields are
// objects; only their scalar leaves are addressable.
type Field struct {
	Name       string
	DataType   DataType
	PrimaryKey bool
	// Length is the max length of the stored value, if any.
	Length *int
	// Categories are hierarchical dot-namespaced labels, e.g. "user.contact.email".
	Categories []string
	References []Reference
	// Identity is the identity seed key feeding this field, e.g. "email".
	Identity string
	Fields   []*Field
}

// IsObject reports whether the field holds nested fields.
func (f *Field) IsObject() bool { return len(f.Fields) > 0 }

// Cast converts a raw value to the declared type of the field.
func (f *Field) Cast(v any) (any, bool) { return f.DataType.Cast(v) }

// MaskingOverride returns the masking metadata of the field.
func (f *Field) MaskingOverride() MaskingOverride {
	return MaskingOverride{DataType: f.DataType, Length: f.Length}
}

// Collection is a named group of fields served under one address. Derived
// indexes are computed once by NewCollection.
type Collection struct {
	Name   string
	Fields []*Field

	paths      []FieldPath
	fields     map[FieldPath]*Field
	topLevel   []FieldPath
	categories map[string][]FieldPath
}

// NewCollection returns a collection with its field indexes built. Field
// names must be unique at each nesting level.
func NewCollection(name string, fields ...*Field) (*Collection, error) {
	c := &Collection{
		Name:       name,
		Fields:     fields,
		fields:     make(map[FieldPath]*Field),
		categories: make(map[string][]FieldPath),
	}
	if err := c.index("", fields); err != nil {
		return nil, err
	}
	for _, f := range fields {
		c.topLevel = append(c.topLevel, FieldPath(f.Name))
	}
	return c, nil
}

func (c *Collection) index(prefix FieldPath, fields []*Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" || strings.Contains(f.Name, ".") {
			return fmt.Errorf("graph: collection %q: invalid field name %q", c.Name, f.Name)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("graph: collection %q: duplicate field %q", c.Name, prefix.Child(f.Name))
		}
		seen[f.Name] = struct{}{}
		path := prefix.Child(f.Name)
		if f.IsObject() {
			if err := c.index(path, f.Fields); err != nil {
				return err
			}
			continue
		}
		c.paths = append(c.paths, path)
		c.fields[path] = f
		for _, cat := range f.Categories {
			c.categories[cat] = append(c.categories[cat], path)
		}
	}
	return nil
}

// FieldPaths returns the paths of all scalar fields in declaration order.
func (c *Collection) FieldPaths() []FieldPath { return c.paths }

// TopLevelPaths returns the paths of the top-level fields in declaration order.
func (c *Collection) TopLevelPaths() []FieldPath { return c.topLevel }

// Field returns the scalar field at path.
func (c *Collection) Field(path FieldPath) (*Field, bool) {
	f, ok := c.fields[path]
	return f, ok
}

// PrimaryKeys returns the paths of primary key fields in declaration order.
func (c *Collection) PrimaryKeys() []FieldPath {
	var pks []FieldPath
	for _, p := range c.paths {
		if c.fields[p].PrimaryKey {
			pks = append(pks, p)
		}
	}
	return pks
}

// Categories returns the sorted data categories used by the collection.
func (c *Collection) Categories() []string {
	cats := make([]string, 0, len(c.categories))
	for cat := range c.categories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// PathsByCategory returns the field paths labeled with the exact category.
func (c *Collection) PathsByCategory(category string) []FieldPath {
	return c.categories[category]
}

// PathsMatching returns the field paths with a category starting with any
// of the given prefixes, in declaration order and without duplicates.
func (c *Collection) PathsMatching(prefixes []string) []FieldPath {
	if len(prefixes) == 0 {
		return nil
	}
	matched := make(map[FieldPath]struct{})
	for cat, paths := range c.categories {
		for _, prefix := range prefixes {
			if strings.HasPrefix(cat, prefix) {
				for _, p := range paths {
					matched[p] = struct{}{}
				}
				break
			}
		}
	}
	var out []FieldPath
	for _, p := range c.paths {
		if _, ok := matched[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Dataset is a named group of collections served by one connection.
type Dataset struct {
	Name          string
	ConnectionKey string
	Collections   []*Collection
}

// Collection returns the collection with the given name.
func (d *Dataset) Collection(name string) (*Collection, bool) {
	for _, c := range d.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Edge is a dependency between two fields: values observed at From are
// candidate inputs for querying the collection owning To.
type Edge struct {
	From FieldAddress
	To   FieldAddress
}

// String returns "from -> to".
func (e Edge) String() string { return e.From.String() + " -> " + e.To.String() }

// QueryToken is a placeholder for a value that is not known yet. It renders
// as "?" and is used for dry-run queries. Tokens are distinct from each
// other so that two tokens for one path survive value deduplication.
type QueryToken struct{ id uint64 }

var tokenSeq atomic.Uint64

// NewQueryToken returns a token distinct from every other token.
func NewQueryToken() QueryToken {
	return QueryToken{id: tokenSeq.Add(1)}
}

// String returns "?".
func (QueryToken) String() string { return "?" }

// MarshalJSON renders the token as the string "?".
func (QueryToken) MarshalJSON() ([]byte, error) { return []byte(`"?"`), nil }
