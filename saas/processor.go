package saas

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
)

// Built-in post-processor names.
const (
	Unwrap = "unwrap"
	Filter = "filter"
)

// Processor transforms the decoded response of a read request before its
// rows are handed to the traversal. Processors of a request run in order,
// each receiving the output of the previous one.
type Processor interface {
	Name() string
	Process(data any, identity map[string]any) (any, error)
}

// ProcessorConfig selects a post-processor by name.
type ProcessorConfig struct {
	Strategy      string         `yaml:"strategy" json:"strategy"`
	Configuration map[string]any `yaml:"configuration" json:"configuration"`
}

// ProcessorFactory builds a post-processor from its configuration.
type ProcessorFactory func(conf map[string]any) (Processor, error)

// Registry maps post-processor names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProcessorFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProcessorFactory)}
}

// DefaultRegistry returns the registry holding the built-in processors.
var DefaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	r.factories[Unwrap] = newUnwrap
	r.factories[Filter] = newFilter
	return r
})

// Register adds a post-processor. Registering a name twice is an error.
func (r *Registry) Register(name string, f ProcessorFactory) error {
	if name == "" || f == nil {
		return fmt.Errorf("saas: invalid registration for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("saas: post-processor %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Processor builds the post-processor selected by c.
func (r *Registry) Processor(c ProcessorConfig) (Processor, error) {
	r.mu.RLock()
	f, ok := r.factories[c.Strategy]
	r.mu.RUnlock()
	if !ok {
		return nil, dsr.NewNoSuchStrategyError("post-processor", c.Strategy, r.Names())
	}
	p, err := f(c.Configuration)
	if err != nil {
		return nil, dsr.NewValidationError(c.Strategy, err)
	}
	return p, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Process runs the post-processors of a request over data.
func (r *Registry) Process(configs []ProcessorConfig, data any, identity map[string]any) (any, error) {
	for _, c := range configs {
		p, err := r.Processor(c)
		if err != nil {
			return nil, err
		}
		if data, err = p.Process(data, identity); err != nil {
			return nil, fmt.Errorf("saas: %s: %w", p.Name(), err)
		}
	}
	return data, nil
}

// Rows converts processed data to rows: an object becomes one row, a list
// of objects one row per object. Other values yield no rows.
func Rows(data any) []graph.Row {
	switch v := data.(type) {
	case map[string]any:
		return []graph.Row{v}
	case []any:
		rows := make([]graph.Row, 0, len(v))
		for _, elem := range v {
			if m, ok := elem.(map[string]any); ok {
				rows = append(rows, m)
			}
		}
		return rows
	}
	return nil
}

// unwrap extracts the value at a dot path of an object.
type unwrap struct {
	DataPath string `yaml:"data_path"`
}

func newUnwrap(conf map[string]any) (Processor, error) {
	u := &unwrap{}
	if err := decode(conf, u); err != nil {
		return nil, err
	}
	if u.DataPath == "" {
		return nil, errors.New("data_path is required")
	}
	return u, nil
}

func (u *unwrap) Name() string { return Unwrap }

func (u *unwrap) Process(data any, _ map[string]any) (any, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object to unwrap, got %T", data)
	}
	v, ok := graph.Row(m).Get(u.DataPath)
	if !ok {
		return nil, nil
	}
	return v, nil
}

// filter keeps the objects whose field equals a value. The value is either
// a literal or {identity: <key>}, read from the identity seed.
type filter struct {
	Field string `yaml:"field"`
	Value any    `yaml:"value"`
}

func newFilter(conf map[string]any) (Processor, error) {
	f := &filter{}
	if err := decode(conf, f); err != nil {
		return nil, err
	}
	if f.Field == "" {
		return nil, errors.New("field is required")
	}
	if f.Value == nil {
		return nil, errors.New("value is required")
	}
	return f, nil
}

func (f *filter) Name() string { return Filter }

func (f *filter) Process(data any, identity map[string]any) (any, error) {
	want := f.Value
	if m, ok := want.(map[string]any); ok {
		key, _ := m["identity"].(string)
		if key == "" {
			return nil, errors.New("value must be a literal or {identity: <key>}")
		}
		want, ok = identity[key]
		if !ok {
			return nil, fmt.Errorf("identity %q is not provided", key)
		}
	}
	match := func(v any) bool {
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		got, ok := graph.Row(m).Get(f.Field)
		return ok && fmt.Sprint(got) == fmt.Sprint(want)
	}
	switch v := data.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, elem := range v {
			if match(elem) {
				out = append(out, elem)
			}
		}
		return out, nil
	case map[string]any:
		if match(v) {
			return []any{v}, nil
		}
		return []any{}, nil
	case nil:
		return []any{}, nil
	}
	return nil, fmt.Errorf("expected an object or a list of objects, got %T", data)
}

func decode(conf map[string]any, out any) error {
	b, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
